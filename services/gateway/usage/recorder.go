// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package usage keeps a per-request ledger of gateway traffic.
//
// Every completed API request produces one Record. Records always land in a
// fixed-capacity in-memory ring plus per-endpoint running totals; two
// optional sinks fan the same record out to BadgerDB (local persistence)
// and InfluxDB (fleet metrics). Sink failures are logged and swallowed so
// accounting can never fail a request.
package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxapi "github.com/influxdata/influxdb-client-go/v2/api"
)

const (
	// RingCapacity bounds the in-memory ledger.
	RingCapacity = 1024
	// RecentLimit caps how many records a Snapshot returns.
	RecentLimit = 100

	badgerKeyPrefix  = "usage/"
	badgerGCInterval = 5 * time.Minute
	badgerGCRatio    = 0.5

	influxMeasurement = "gateway_request"
)

// Record is one completed API request.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Endpoint  string    `json:"endpoint"`
	Model     string    `json:"model"`
	Status    int       `json:"status"`
	LatencyMS int64     `json:"latency_ms"`
	Cached    bool      `json:"cached"`
}

// Summary is the admin-facing view of the ledger.
type Summary struct {
	Totals map[string]int64 `json:"totals"`
	Recent []Record         `json:"recent"`
}

// Options selects the optional sinks. Zero values disable them.
type Options struct {
	// DBPath enables the BadgerDB ledger at that directory.
	DBPath string
	// All four Influx fields must be set to enable export.
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
}

// Recorder accumulates usage records.
//
// # Thread Safety
//
// Safe for concurrent use. The ring and totals are mutex-guarded; sink
// writes happen outside the lock.
type Recorder struct {
	mu     sync.Mutex
	ring   []Record
	head   int // next write position
	count  int
	totals map[string]int64

	db     *badger.DB
	gcStop chan struct{}
	gcDone chan struct{}

	influxClient influxdb2.Client
	influxWrite  influxapi.WriteAPIBlocking
}

// NewRecorder builds a recorder with the requested sinks. A sink that fails
// to initialize is an error; a sink that is not requested is simply absent.
func NewRecorder(opts Options) (*Recorder, error) {
	r := &Recorder{
		ring:   make([]Record, RingCapacity),
		totals: make(map[string]int64),
	}

	if opts.DBPath != "" {
		// SyncWrites off: losing the tail of the ledger on a crash is
		// acceptable, doubling write latency is not.
		db, err := badger.Open(badger.DefaultOptions(opts.DBPath).
			WithSyncWrites(false).
			WithLogger(nil))
		if err != nil {
			return nil, fmt.Errorf("open usage ledger: %w", err)
		}
		r.db = db
		r.gcStop = make(chan struct{})
		r.gcDone = make(chan struct{})
		go r.runGC()
		slog.Info("Usage ledger enabled", "path", opts.DBPath)
	}

	if opts.InfluxURL != "" && opts.InfluxToken != "" && opts.InfluxOrg != "" && opts.InfluxBucket != "" {
		r.influxClient = influxdb2.NewClient(opts.InfluxURL, opts.InfluxToken)
		r.influxWrite = r.influxClient.WriteAPIBlocking(opts.InfluxOrg, opts.InfluxBucket)
		slog.Info("Usage export enabled", "url", opts.InfluxURL, "bucket", opts.InfluxBucket)
	}

	return r, nil
}

// Record appends one usage record to the ring and fans it out to the
// configured sinks. A zero timestamp is stamped with the current time.
func (r *Recorder) Record(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	r.mu.Lock()
	r.ring[r.head] = rec
	r.head = (r.head + 1) % len(r.ring)
	if r.count < len(r.ring) {
		r.count++
	}
	r.totals[rec.Endpoint]++
	r.mu.Unlock()

	if r.db != nil {
		r.persist(rec)
	}
	if r.influxWrite != nil {
		r.export(rec)
	}
}

// Snapshot returns the per-endpoint totals and the most recent records in
// chronological order.
func (r *Recorder) Snapshot() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	totals := make(map[string]int64, len(r.totals))
	for endpoint, n := range r.totals {
		totals[endpoint] = n
	}

	n := r.count
	if n > RecentLimit {
		n = RecentLimit
	}
	recent := make([]Record, 0, n)
	for i := r.count - n; i < r.count; i++ {
		idx := (r.head - r.count + i + len(r.ring)) % len(r.ring)
		recent = append(recent, r.ring[idx])
	}

	return Summary{Totals: totals, Recent: recent}
}

// Close flushes and releases the sinks. Safe to call once.
func (r *Recorder) Close() error {
	var err error
	if r.db != nil {
		close(r.gcStop)
		<-r.gcDone
		err = r.db.Close()
	}
	if r.influxClient != nil {
		r.influxClient.Close()
	}
	return err
}

func (r *Recorder) persist(rec Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		slog.Warn("Usage record marshal failed", "error", err)
		return
	}
	key := []byte(badgerKeyPrefix + strconv.FormatInt(rec.Timestamp.UnixNano(), 10))
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		slog.Warn("Usage ledger write failed", "error", err)
	}
}

func (r *Recorder) export(rec Record) {
	point := influxdb2.NewPoint(
		influxMeasurement,
		map[string]string{
			"endpoint": rec.Endpoint,
			"model":    rec.Model,
			"status":   strconv.Itoa(rec.Status),
		},
		map[string]interface{}{
			"latency_ms": rec.LatencyMS,
			"cached":     rec.Cached,
		},
		rec.Timestamp,
	)
	if err := r.influxWrite.WritePoint(context.Background(), point); err != nil {
		slog.Warn("Usage export failed", "error", err)
	}
}

func (r *Recorder) runGC() {
	defer close(r.gcDone)

	ticker := time.NewTicker(badgerGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.gcStop:
			return
		case <-ticker.C:
			// ErrNoRewrite just means there was nothing worth collecting.
			if err := r.db.RunValueLogGC(badgerGCRatio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				slog.Warn("Usage ledger GC failed", "error", err)
			}
		}
	}
}
