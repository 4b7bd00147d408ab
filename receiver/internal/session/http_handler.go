package session

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Krimson/ctg-stream/receiver/internal/simulate"
	"github.com/Krimson/ctg-stream/receiver/internal/stream"
)

// Лимиты выборки истории
const (
	DefaultSamplesLimit     = 300
	DefaultPredictionsLimit = 50
	MaxLimit                = 10000
)

// HTTPHandler обрабатывает HTTP запросы управления потоками случаев
type HTTPHandler struct {
	streams Streams
	history History
	sim     Simulator
	logger  *zap.Logger
}

// NewHTTPHandler создает новый HTTP обработчик.
// sim может быть nil, тогда маршруты симуляции отвечают 501.
func NewHTTPHandler(streams Streams, history History, sim Simulator, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		streams: streams,
		history: history,
		sim:     sim,
		logger:  logger.Named("api"),
	}
}

// RegisterRoutes регистрирует маршруты в роутере
func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/cases").Subrouter()

	api.HandleFunc("", h.ListStreams).Methods("GET")
	api.HandleFunc("/{id}/stream", h.StartStream).Methods("POST")
	api.HandleFunc("/{id}/stream", h.GetStream).Methods("GET")
	api.HandleFunc("/{id}/stream", h.StopStream).Methods("DELETE")
	api.HandleFunc("/{id}/samples", h.PushSample).Methods("POST")
	api.HandleFunc("/{id}/samples", h.GetSamples).Methods("GET")
	api.HandleFunc("/{id}/predictions", h.GetPredictions).Methods("GET")
	api.HandleFunc("/{id}/sim", h.StartSim).Methods("POST")
	api.HandleFunc("/{id}/sim", h.StopSim).Methods("DELETE")
}

// StartStream запускает поток случая
// @Summary Запустить поток
// @Description Запускает оценку окна для случая. Горизонт ограничивается [1,60], шаг не меньше 1 с.
// @Tags streams
// @Accept json
// @Produce json
// @Param id path string true "ID случая"
// @Param request body StartStreamRequest false "Параметры потока"
// @Success 201 {object} stream.Snapshot
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/cases/{id}/stream [post]
func (h *HTTPHandler) StartStream(w http.ResponseWriter, r *http.Request) {
	caseID := mux.Vars(r)["id"]

	var req StartStreamRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	snap, err := h.streams.Start(caseID, stream.Options{
		StrideS:        req.StrideS,
		HorizonMinutes: req.HorizonMinutes,
	})
	if err != nil {
		h.respondFailure(w, "start stream", caseID, err)
		return
	}

	respondJSON(w, http.StatusCreated, snap)
}

// GetStream возвращает состояние потока
// @Summary Состояние потока
// @Tags streams
// @Produce json
// @Param id path string true "ID случая"
// @Success 200 {object} stream.Snapshot
// @Failure 404 {object} ErrorResponse
// @Router /api/cases/{id}/stream [get]
func (h *HTTPHandler) GetStream(w http.ResponseWriter, r *http.Request) {
	caseID := mux.Vars(r)["id"]

	snap, err := h.streams.Snapshot(caseID)
	if err != nil {
		h.respondFailure(w, "get stream", caseID, err)
		return
	}

	respondJSON(w, http.StatusOK, snap)
}

// StopStream останавливает поток и симуляцию случая
// @Summary Остановить поток
// @Tags streams
// @Produce json
// @Param id path string true "ID случая"
// @Success 200 {object} MessageResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/cases/{id}/stream [delete]
func (h *HTTPHandler) StopStream(w http.ResponseWriter, r *http.Request) {
	caseID := mux.Vars(r)["id"]

	// Симуляция без потока снова запустила бы его через Ingest
	if h.sim != nil {
		if err := h.sim.Stop(caseID); err != nil && !errors.Is(err, simulate.ErrNotRunning) {
			h.logger.Warn("failed to stop simulation", zap.String("case_id", caseID), zap.Error(err))
		}
	}

	if err := h.streams.Stop(caseID); err != nil {
		h.respondFailure(w, "stop stream", caseID, err)
		return
	}

	respondJSON(w, http.StatusOK, MessageResponse{
		Message: "Stream stopped successfully",
		CaseID:  caseID,
	})
}

// ListStreams возвращает активные потоки
// @Summary Список потоков
// @Tags streams
// @Produce json
// @Success 200 {object} StreamListResponse
// @Router /api/cases [get]
func (h *HTTPHandler) ListStreams(w http.ResponseWriter, r *http.Request) {
	streams := h.streams.List()
	respondJSON(w, http.StatusOK, StreamListResponse{
		Streams: streams,
		Count:   len(streams),
		Stats:   h.streams.Stats(),
	})
}

// PushSample принимает один сэмпл
// @Summary Отправить сэмпл
// @Description Случай без активного потока запускается с параметрами по умолчанию.
// @Tags samples
// @Accept json
// @Produce json
// @Param id path string true "ID случая"
// @Param request body SampleRequest true "Сэмпл"
// @Success 202 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/cases/{id}/samples [post]
func (h *HTTPHandler) PushSample(w http.ResponseWriter, r *http.Request) {
	caseID := mux.Vars(r)["id"]

	var req SampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.streams.Ingest(r.Context(), caseID, stream.Input{T: req.T, BPM: req.BPM, UC: req.UC}); err != nil {
		h.respondFailure(w, "ingest sample", caseID, err)
		return
	}

	respondJSON(w, http.StatusAccepted, MessageResponse{
		Message: "Sample accepted",
		CaseID:  caseID,
	})
}

// GetSamples возвращает последние сэмплы
// @Summary Последние сэмплы
// @Tags samples
// @Produce json
// @Param id path string true "ID случая"
// @Param limit query int false "Количество" default(300)
// @Success 200 {object} SamplesResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/cases/{id}/samples [get]
func (h *HTTPHandler) GetSamples(w http.ResponseWriter, r *http.Request) {
	caseID := mux.Vars(r)["id"]

	limit, ok := getLimit(w, r, DefaultSamplesLimit)
	if !ok {
		return
	}

	samples, err := h.history.ReadLastSamples(r.Context(), caseID, limit)
	if err != nil {
		h.respondFailure(w, "read samples", caseID, err)
		return
	}

	respondJSON(w, http.StatusOK, SamplesResponse{
		CaseID:  caseID,
		Samples: samples,
		Count:   len(samples),
	})
}

// GetPredictions возвращает последние предсказания
// @Summary Последние предсказания
// @Tags predictions
// @Produce json
// @Param id path string true "ID случая"
// @Param limit query int false "Количество" default(50)
// @Success 200 {object} PredictionsResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/cases/{id}/predictions [get]
func (h *HTTPHandler) GetPredictions(w http.ResponseWriter, r *http.Request) {
	caseID := mux.Vars(r)["id"]

	limit, ok := getLimit(w, r, DefaultPredictionsLimit)
	if !ok {
		return
	}

	preds, err := h.history.ReadLastPredictions(r.Context(), caseID, limit)
	if err != nil {
		h.respondFailure(w, "read predictions", caseID, err)
		return
	}

	respondJSON(w, http.StatusOK, PredictionsResponse{
		CaseID:      caseID,
		Predictions: preds,
		Count:       len(preds),
	})
}

// StartSim запускает синтетический источник сэмплов
// @Summary Запустить симуляцию
// @Tags simulation
// @Accept json
// @Produce json
// @Param id path string true "ID случая"
// @Param request body StartSimRequest false "Частота"
// @Success 201 {object} SimResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/cases/{id}/sim [post]
func (h *HTTPHandler) StartSim(w http.ResponseWriter, r *http.Request) {
	caseID := mux.Vars(r)["id"]
	if h.sim == nil {
		respondError(w, http.StatusNotImplemented, "Simulation is disabled")
		return
	}

	var req StartSimRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	hz, err := h.sim.Start(caseID, req.Hz)
	if err != nil {
		h.respondFailure(w, "start simulation", caseID, err)
		return
	}

	respondJSON(w, http.StatusCreated, SimResponse{CaseID: caseID, Hz: hz, Status: "running"})
}

// StopSim останавливает симуляцию
// @Summary Остановить симуляцию
// @Tags simulation
// @Produce json
// @Param id path string true "ID случая"
// @Success 200 {object} SimResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/cases/{id}/sim [delete]
func (h *HTTPHandler) StopSim(w http.ResponseWriter, r *http.Request) {
	caseID := mux.Vars(r)["id"]
	if h.sim == nil {
		respondError(w, http.StatusNotImplemented, "Simulation is disabled")
		return
	}

	if err := h.sim.Stop(caseID); err != nil {
		h.respondFailure(w, "stop simulation", caseID, err)
		return
	}

	respondJSON(w, http.StatusOK, SimResponse{CaseID: caseID, Status: "stopped"})
}

// respondFailure переводит ошибку домена в HTTP статус
func (h *HTTPHandler) respondFailure(w http.ResponseWriter, op, caseID string, err error) {
	switch {
	case errors.Is(err, stream.ErrStreamNotFound), errors.Is(err, simulate.ErrNotRunning):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, stream.ErrStreamExists), errors.Is(err, simulate.ErrAlreadyRunning):
		respondError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("request failed", zap.String("op", op), zap.String("case_id", caseID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to "+op)
	}
}

// decodeBody допускает пустое тело
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Вспомогательные функции

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:  message,
		Status: status,
	})
}

func getLimit(w http.ResponseWriter, r *http.Request, defaultValue int) (int, bool) {
	value := r.URL.Query().Get("limit")
	if value == "" {
		return defaultValue, true
	}

	limit, err := strconv.Atoi(value)
	if err != nil || limit <= 0 {
		respondError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return limit, true
}
