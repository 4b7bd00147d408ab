package replay

import (
	"context"
	"time"

	"github.com/Krimson/ctg-stream/receiver/internal/stream"
)

// Play отправляет сэмплы в out с темпом, заданным их временем.
// speed > 1 ускоряет проигрывание, speed <= 0 отключает паузы.
// Канал out закрывается по завершении.
func Play(ctx context.Context, samples []stream.Input, speed float64, out chan<- stream.Input) error {
	defer close(out)

	startTime := time.Now()
	var t0 *float64

	for _, in := range samples {
		if t0 == nil {
			t0 = in.T
		}
		if speed > 0 && in.T != nil {
			offset := time.Duration((*in.T - *t0) / speed * float64(time.Second))
			if wait := time.Until(startTime.Add(offset)); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				case <-timer.C:
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- in:
		}
	}
	return nil
}
