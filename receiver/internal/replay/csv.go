// Package replay читает записи КТГ из CSV и проигрывает их в реальном темпе.
package replay

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/Krimson/ctg-stream/receiver/internal/stream"
)

// Точки двух каналов с разницей времени меньше этого сливаются в один сэмпл
const mergeEpsilonS = 1e-6

// Point - одно значение канала: time_sec,value
type Point struct {
	TimeSec float64
	Value   *float64
}

// ReadSeriesFile читает CSV канала с заголовком
func ReadSeriesFile(filename string) ([]Point, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file %s: %w", filename, err)
	}
	defer file.Close()

	points, err := ReadSeries(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return points, nil
}

// ReadSeries читает пары time_sec,value; первая строка - заголовок.
// Пустое значение или NaN - пропуск.
func ReadSeries(r io.Reader) ([]Point, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	_, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("no data records")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	var points []Point
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV data: %w", err)
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("invalid record at line %d: expected 2 columns", line)
		}

		timeSec, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		if err != nil || math.IsNaN(timeSec) || math.IsInf(timeSec, 0) {
			return nil, fmt.Errorf("invalid time format at line %d: %q", line, record[0])
		}

		value, err := parseValue(record[1])
		if err != nil {
			return nil, fmt.Errorf("invalid value format at line %d: %w", line, err)
		}

		points = append(points, Point{TimeSec: timeSec, Value: value})
	}

	if len(points) == 0 {
		return nil, errors.New("no data records")
	}
	return points, nil
}

func parseValue(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, nil
	}
	return &v, nil
}

// Merge сводит каналы ЧСС и токографии в сэмплы, упорядоченные по времени.
// Канал без точки в момент t дает пропуск.
func Merge(fhr, uc []Point) []stream.Input {
	type tagged struct {
		Point
		isUC bool
	}

	all := make([]tagged, 0, len(fhr)+len(uc))
	for _, p := range fhr {
		all = append(all, tagged{Point: p})
	}
	for _, p := range uc {
		all = append(all, tagged{Point: p, isUC: true})
	}
	slices.SortStableFunc(all, func(a, b tagged) int {
		switch {
		case a.TimeSec < b.TimeSec:
			return -1
		case a.TimeSec > b.TimeSec:
			return 1
		}
		return 0
	})

	var out []stream.Input
	for _, p := range all {
		n := len(out)
		if n == 0 || p.TimeSec-*out[n-1].T > mergeEpsilonS || slotTaken(out[n-1], p.isUC) {
			t := p.TimeSec
			out = append(out, stream.Input{T: &t})
			n++
		}
		if p.isUC {
			out[n-1].UC = p.Value
		} else {
			out[n-1].BPM = p.Value
		}
	}
	return out
}

// slotTaken - у сэмпла уже есть значение этого канала
func slotTaken(in stream.Input, isUC bool) bool {
	if isUC {
		return in.UC != nil
	}
	return in.BPM != nil
}
