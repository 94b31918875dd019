// Package backup periodically snapshots mutated pads to object storage.
// The daemon keeps a dirty set fed by the mutation pipeline and sweeps it
// on a fixed interval, so write bursts collapse into one snapshot per pad.
package backup

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/golang/snappy"

	"github.com/padsync/padsync/internal/geometry"
	"github.com/padsync/padsync/internal/padstore"
	"github.com/padsync/padsync/internal/storage"
	"github.com/padsync/padsync/pkg/types"
)

// Snapshot is the serialized backup of one pad: every object it owns plus
// the full-resolution geometry of every line.
type Snapshot struct {
	Pad     *types.Pad                    `json:"pad"`
	Markers []*types.Marker               `json:"markers"`
	Lines   []*types.Line                 `json:"lines"`
	Views   []*types.View                 `json:"views"`
	Types   []*types.Type                 `json:"types"`
	Points  map[string][]types.TrackPoint `json:"points"`
	Taken   time.Time                     `json:"taken"`
}

// Daemon sweeps dirty pads to object storage.
type Daemon struct {
	store    padstore.Store
	geom     *geometry.Store
	objects  storage.ObjectStorage
	interval time.Duration

	mu    sync.Mutex
	dirty map[string]struct{}

	stop chan struct{}
	done chan struct{}
}

// NewDaemon creates a backup daemon. Call Start to begin sweeping.
func NewDaemon(store padstore.Store, geom *geometry.Store, objects storage.ObjectStorage, interval time.Duration) *Daemon {
	return &Daemon{
		store:    store,
		geom:     geom,
		objects:  objects,
		interval: interval,
		dirty:    make(map[string]struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// MarkDirty queues a pad for the next sweep. Safe for concurrent use.
func (d *Daemon) MarkDirty(padID string) {
	d.mu.Lock()
	d.dirty[padID] = struct{}{}
	d.mu.Unlock()
}

// Start runs the sweep loop until Stop is called.
func (d *Daemon) Start() {
	go d.loop()
}

// Stop ends the sweep loop after flushing the pending dirty set.
func (d *Daemon) Stop() {
	close(d.stop)
	<-d.done
}

func (d *Daemon) loop() {
	defer close(d.done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.Sweep(context.Background())
		case <-d.stop:
			d.Sweep(context.Background())
			return
		}
	}
}

// Sweep snapshots every dirty pad. Pads that fail stay dirty and are
// retried on the next sweep.
func (d *Daemon) Sweep(ctx context.Context) {
	d.mu.Lock()
	pending := d.dirty
	d.dirty = make(map[string]struct{})
	d.mu.Unlock()

	for padID := range pending {
		if err := d.SnapshotPad(ctx, padID); err != nil {
			log.Printf("backup: pad %s: %v", padID, err)
			d.MarkDirty(padID)
		}
	}
}

// SnapshotPad writes one pad's snapshot to object storage. A pad deleted
// since it was marked dirty has its backup removed instead.
func (d *Daemon) SnapshotPad(ctx context.Context, padID string) error {
	pad, err := d.store.GetPad(ctx, padID)
	if err != nil {
		return d.objects.Delete(ctx, snapshotKey(padID))
	}

	snap := Snapshot{
		Pad:    pad,
		Points: make(map[string][]types.TrackPoint),
		Taken:  time.Now().UTC(),
	}
	if snap.Markers, err = d.store.MarkersForPad(ctx, padID); err != nil {
		return err
	}
	if snap.Lines, err = d.store.LinesForPad(ctx, padID); err != nil {
		return err
	}
	if snap.Views, err = d.store.ViewsForPad(ctx, padID); err != nil {
		return err
	}
	if snap.Types, err = d.store.TypesForPad(ctx, padID); err != nil {
		return err
	}
	for _, l := range snap.Lines {
		points, err := d.geom.FullLinePoints(ctx, l.ID)
		if err != nil {
			return err
		}
		snap.Points[l.ID] = points
	}

	raw, err := json.Marshal(&snap)
	if err != nil {
		return err
	}
	return d.objects.Put(ctx, snapshotKey(padID), snappy.Encode(nil, raw))
}

// LoadSnapshot reads a pad's backup back from object storage.
func (d *Daemon) LoadSnapshot(ctx context.Context, padID string) (*Snapshot, error) {
	compressed, err := d.objects.Get(ctx, snapshotKey(padID))
	if err != nil {
		return nil, err
	}
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func snapshotKey(padID string) string {
	return "pads/" + padID + "/snapshot.json.sz"
}
