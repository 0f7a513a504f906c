package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/printdesk/fleet/internal/config"
	"github.com/printdesk/fleet/internal/core"
)

const (
	EventPrinterStatusChanged = "printer_status_changed"
	EventAlertRaised          = "alert_raised"
)

type Payload struct {
	DeliveryID string      `json:"delivery_id"`
	Event      string      `json:"event"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       interface{} `json:"data"`
	Signature  string      `json:"signature,omitempty"`
}

type JobEventData struct {
	OrderID      string     `json:"order_id"`
	PrinterID    string     `json:"printer_id,omitempty"`
	StoreID      string     `json:"store_id"`
	Status       string     `json:"status"`
	Priority     int        `json:"priority"`
	ErrorMessage string     `json:"error_message,omitempty"`
	EstimatedEnd *time.Time `json:"estimated_end,omitempty"`
}

type PrinterStatusData struct {
	PrinterID      string    `json:"printer_id"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	Reason         string    `json:"reason,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type task struct {
	endpoint config.WebhookEndpoint
	payload  *Payload
	attempt  int
}

// Sender delivers fleet events to configured webhook endpoints through
// a bounded worker pool with exponential-backoff retries. Payloads are
// HMAC-SHA256 signed when the endpoint carries a secret. It implements
// core.EventSink; enqueueing never blocks the scheduler.
type Sender struct {
	endpoints  []config.WebhookEndpoint
	httpClient *http.Client
	retryCount int
	retryDelay time.Duration
	workers    int
	queue      chan *task
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

func NewSender(cfg config.WebhooksConfig) *Sender {
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}

	return &Sender{
		endpoints: cfg.Endpoints,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		retryCount: cfg.RetryCount,
		retryDelay: cfg.RetryDelay,
		workers:    cfg.WorkerCount,
		queue:      make(chan *task, cfg.QueueSize),
		stopCh:     make(chan struct{}),
	}
}

func (s *Sender) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *Sender) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Sender) JobEvent(event string, job core.Job) {
	s.enqueue(event, &JobEventData{
		OrderID:      job.OrderID,
		PrinterID:    job.PrinterID,
		StoreID:      job.StoreID,
		Status:       string(job.Status),
		Priority:     job.Priority,
		ErrorMessage: job.ErrorMessage,
		EstimatedEnd: job.EstimatedEnd,
	})
}

func (s *Sender) PrinterStatusChanged(printerID string, oldStatus, newStatus core.PrinterStatus, reason string) {
	s.enqueue(EventPrinterStatusChanged, &PrinterStatusData{
		PrinterID:      printerID,
		PreviousStatus: string(oldStatus),
		NewStatus:      string(newStatus),
		Reason:         reason,
		Timestamp:      time.Now(),
	})
}

func (s *Sender) AlertRaised(alert core.Alert) {
	s.enqueue(EventAlertRaised, alert)
}

func (s *Sender) enqueue(event string, data interface{}) {
	for _, ep := range s.endpoints {
		if !wantsEvent(ep, event) {
			continue
		}

		t := &task{
			endpoint: ep,
			payload: &Payload{
				DeliveryID: uuid.NewString(),
				Event:      event,
				Timestamp:  time.Now(),
				Data:       data,
			},
		}

		select {
		case s.queue <- t:
		default:
			log.Printf("[webhook] queue full, dropping %s for %s", event, ep.Name)
		}
	}
}

// wantsEvent matches an endpoint's event filter; an empty filter means
// everything.
func wantsEvent(ep config.WebhookEndpoint, event string) bool {
	if len(ep.Events) == 0 {
		return true
	}
	for _, e := range ep.Events {
		if e == event {
			return true
		}
	}
	return false
}

func (s *Sender) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case t := <-s.queue:
			if err := s.sendWithRetry(t); err != nil {
				log.Printf("[webhook worker %d] giving up on %s for %s after %d attempts: %v",
					id, t.payload.Event, t.endpoint.Name, t.attempt, err)
			}
		}
	}
}

func (s *Sender) sendWithRetry(t *task) error {
	var lastErr error
	for t.attempt < s.retryCount {
		t.attempt++

		err := s.sendRequest(t.endpoint, t.payload)
		if err == nil {
			return nil
		}
		lastErr = err

		if isClientError(err) {
			return err
		}

		if t.attempt < s.retryCount {
			backoff := s.retryDelay * time.Duration(1<<(t.attempt-1))
			select {
			case <-s.stopCh:
				return fmt.Errorf("shutdown requested")
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (s *Sender) sendRequest(ep config.WebhookEndpoint, payload *Payload) error {
	dataBytes, err := json.Marshal(payload.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	if ep.Secret != "" {
		payload.Signature = signPayload(dataBytes, ep.Secret)
	}

	fullPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, ep.URL, bytes.NewReader(fullPayload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", payload.Signature)
	req.Header.Set("X-Webhook-Event", payload.Event)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("http error: %d", resp.StatusCode)
	}

	return nil
}

func signPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func isClientError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "http error: 4")
}
