// Package worker multiplexes the presentation layer's request channel
// onto the engine. Each request runs in its own goroutine and produces
// exactly one reply; the connectivity probe and the stock reconciliation
// loop run beside it and push unsolicited events.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"posbridge/internal/connectivity"
	"posbridge/internal/domain"
	"posbridge/internal/remote"
	"posbridge/internal/service"
	"posbridge/internal/stocksync"
)

type Worker struct {
	svc     *service.Service
	client  *remote.Client
	monitor *connectivity.Monitor
	loop    *stocksync.Loop

	requests chan Request
	replies  chan Reply
	events   chan Event
}

// Options tune the background timers; zero values use defaults.
type Options struct {
	ProbeInterval time.Duration
}

func New(svc *service.Service, client *remote.Client, opts Options) *Worker {
	w := &Worker{
		svc:      svc,
		client:   client,
		requests: make(chan Request, 64),
		replies:  make(chan Reply, 64),
		events:   make(chan Event, 16),
	}

	w.monitor = connectivity.NewMonitor(client, opts.ProbeInterval, func(state domain.OfflineState) {
		w.pushEvent(Event{Type: EventServerStatusChange, Payload: state})
	})
	w.loop = stocksync.NewLoop(client, svc, w.monitor.Offline, stocksync.Callbacks{
		OnComplete: func(applied int, dur time.Duration) {
			w.pushEvent(Event{Type: EventStockSyncComplete, Payload: map[string]any{
				"applied":     applied,
				"duration_ms": dur.Milliseconds(),
			}})
		},
		OnError: func(err error) {
			w.pushEvent(Event{Type: EventStockSyncError, Payload: map[string]any{
				"error": err.Error(),
			}})
		},
	})
	return w
}

// Submit hands a request to the worker. It blocks only if the inbound
// buffer is full.
func (w *Worker) Submit(req Request) {
	w.requests <- req
}

func (w *Worker) Replies() <-chan Reply { return w.replies }
func (w *Worker) Events() <-chan Event  { return w.events }

// Run is the supervisor loop. It owns the probe goroutine and dispatches
// every inbound request onto its own goroutine so a slow store
// transaction never blocks message handling.
func (w *Worker) Run(ctx context.Context) {
	go w.monitor.Run(ctx)
	w.pushEvent(Event{Type: EventWorkerReady})

	for {
		select {
		case <-ctx.Done():
			w.loop.Stop()
			return
		case req := <-w.requests:
			go w.dispatch(ctx, req)
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, req Request) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	payload, err := w.handle(ctx, req)
	if err != nil {
		w.replies <- Reply{ID: req.ID, OK: false, Error: err.Error()}
		return
	}
	w.replies <- Reply{ID: req.ID, OK: true, Payload: payload}
}

func (w *Worker) handle(ctx context.Context, req Request) (any, error) {
	switch req.Op {
	case OpSetCredentialToken:
		var body struct {
			Token string `json:"token"`
		}
		if err := decode(req.Payload, &body); err != nil {
			return nil, err
		}
		return nil, w.client.SetToken(body.Token)

	case OpProbeConnectivity:
		online := w.monitor.Probe(ctx)
		return map[string]bool{"online": online}, nil

	case OpCheckOfflineState:
		return w.monitor.State(), nil

	case OpSetManualOffline:
		var body struct {
			Offline bool `json:"offline"`
		}
		if err := decode(req.Payload, &body); err != nil {
			return nil, err
		}
		w.monitor.SetManualOverride(body.Offline)
		return w.monitor.State(), nil

	case OpSetReportedOnline:
		var body struct {
			Online bool `json:"online"`
		}
		if err := decode(req.Payload, &body); err != nil {
			return nil, err
		}
		w.monitor.SetReportedOnline(body.Online)
		return w.monitor.State(), nil

	case OpEnqueueTransaction:
		tx, err := w.svc.EnqueueTransaction(ctx, req.Payload)
		if err != nil {
			return nil, err
		}
		return tx, nil

	case OpGetTransaction:
		id, err := decodeID(req.Payload)
		if err != nil {
			return nil, err
		}
		return w.svc.GetTransaction(ctx, id)

	case OpListTransactions:
		unsynced, err := decodeUnsyncedOnly(req.Payload)
		if err != nil {
			return nil, err
		}
		return w.svc.ListTransactions(ctx, unsynced)

	case OpDeleteTransaction:
		id, err := decodeID(req.Payload)
		if err != nil {
			return nil, err
		}
		return nil, w.svc.DeleteTransaction(ctx, id)

	case OpCountTransactions:
		unsynced, err := decodeUnsyncedOnly(req.Payload)
		if err != nil {
			return nil, err
		}
		count, err := w.svc.CountTransactions(ctx, unsynced)
		if err != nil {
			return nil, err
		}
		return map[string]int{"count": count}, nil

	case OpMarkRetry:
		id, err := decodeID(req.Payload)
		if err != nil {
			return nil, err
		}
		return nil, w.svc.MarkTransactionRetry(ctx, id)

	case OpGetItem:
		var body struct {
			ItemCode string `json:"item_code"`
		}
		if err := decode(req.Payload, &body); err != nil {
			return nil, err
		}
		return w.svc.GetItem(ctx, body.ItemCode)

	case OpSearchItems:
		term, limit, err := decodeSearch(req.Payload)
		if err != nil {
			return nil, err
		}
		return w.svc.SearchItems(ctx, term, limit), nil

	case OpSearchCustomers:
		term, limit, err := decodeSearch(req.Payload)
		if err != nil {
			return nil, err
		}
		return w.svc.SearchCustomers(ctx, term, limit), nil

	case OpIngestItems:
		var records []domain.ItemRecord
		if err := decode(req.Payload, &records); err != nil {
			return nil, err
		}
		processed, err := w.svc.IngestItems(ctx, records)
		if err != nil {
			return nil, err
		}
		return map[string]int{"processed": processed}, nil

	case OpIngestCustomers:
		var customers []domain.Customer
		if err := decode(req.Payload, &customers); err != nil {
			return nil, err
		}
		processed, err := w.svc.IngestCustomers(ctx, customers)
		if err != nil {
			return nil, err
		}
		return map[string]int{"processed": processed}, nil

	case OpIngestPaymentMethods:
		var methods []domain.PaymentMethods
		if err := decode(req.Payload, &methods); err != nil {
			return nil, err
		}
		processed, err := w.svc.IngestPaymentMethods(ctx, methods)
		if err != nil {
			return nil, err
		}
		return map[string]int{"processed": processed}, nil

	case OpClearItemCache:
		return nil, w.svc.ClearItemCache(ctx)

	case OpClearCustomerCache:
		return nil, w.svc.ClearCustomerCache(ctx)

	case OpRemoveItemsByGroup:
		var body struct {
			ItemGroup string `json:"item_group"`
		}
		if err := decode(req.Payload, &body); err != nil {
			return nil, err
		}
		removed, err := w.svc.RemoveItemsByGroup(ctx, body.ItemGroup)
		if err != nil {
			return nil, err
		}
		return map[string]int{"removed": removed}, nil

	case OpReadMetrics:
		return w.svc.Metrics(), nil

	case OpGetPaymentMethods:
		var body struct {
			Profile string `json:"profile"`
		}
		if err := decode(req.Payload, &body); err != nil {
			return nil, err
		}
		return w.svc.GetPaymentMethods(ctx, body.Profile)

	case OpSavePaymentMethods:
		var methods domain.PaymentMethods
		if err := decode(req.Payload, &methods); err != nil {
			return nil, err
		}
		return nil, w.svc.SavePaymentMethods(ctx, methods)

	case OpCacheReady:
		return map[string]bool{"ready": w.svc.CacheReady(ctx)}, nil

	case OpCacheStats:
		return w.svc.Stats(ctx), nil

	case OpApplyStockUpdates:
		var quantities []domain.StockQuantity
		if err := decode(req.Payload, &quantities); err != nil {
			return nil, err
		}
		applied, err := w.svc.ApplyStockUpdates(ctx, quantities)
		if err != nil {
			return nil, err
		}
		return map[string]int{"applied": applied}, nil

	case OpStockSyncStart:
		w.loop.Start(ctx)
		return w.loop.Status(), nil

	case OpStockSyncStop:
		w.loop.Stop()
		return w.loop.Status(), nil

	case OpStockSyncConfigure:
		var body struct {
			Warehouse       string   `json:"warehouse"`
			ItemCodes       []string `json:"item_codes"`
			IntervalSeconds int      `json:"interval_seconds"`
		}
		if err := decode(req.Payload, &body); err != nil {
			return nil, err
		}
		w.loop.Configure(ctx, domain.SyncConfig{
			Warehouse: body.Warehouse,
			ItemCodes: body.ItemCodes,
			Interval:  time.Duration(body.IntervalSeconds) * time.Second,
		})
		return w.loop.Status(), nil

	case OpStockSyncStatus:
		return w.loop.Status(), nil

	case OpStockSyncTrigger:
		w.loop.Trigger(ctx)
		return w.loop.Status(), nil
	}

	return nil, fmt.Errorf("unknown operation %q", req.Op)
}

// pushEvent drops on a full buffer rather than blocking the engine; a
// consumer that stopped listening should not wedge timers.
func (w *Worker) pushEvent(ev Event) {
	select {
	case w.events <- ev:
	default:
		log.Printf("[worker] event buffer full, dropping %s", ev.Type)
	}
}

func decode(payload json.RawMessage, into any) error {
	if len(payload) == 0 {
		return errors.New("missing request payload")
	}
	if err := json.Unmarshal(payload, into); err != nil {
		return fmt.Errorf("decode request payload: %w", err)
	}
	return nil
}

func decodeID(payload json.RawMessage) (string, error) {
	var body struct {
		ID string `json:"id"`
	}
	if err := decode(payload, &body); err != nil {
		return "", err
	}
	if body.ID == "" {
		return "", errors.New("missing transaction id")
	}
	return body.ID, nil
}

func decodeUnsyncedOnly(payload json.RawMessage) (bool, error) {
	if len(payload) == 0 {
		return false, nil
	}
	var body struct {
		UnsyncedOnly bool `json:"unsynced_only"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return false, fmt.Errorf("decode request payload: %w", err)
	}
	return body.UnsyncedOnly, nil
}

func decodeSearch(payload json.RawMessage) (string, int, error) {
	var body struct {
		Term  string `json:"term"`
		Limit int    `json:"limit"`
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &body); err != nil {
			return "", 0, fmt.Errorf("decode request payload: %w", err)
		}
	}
	return body.Term, body.Limit, nil
}
