package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pid-editor/backend/internal/diagram"
	"github.com/pid-editor/backend/internal/llm"
	"github.com/pid-editor/backend/internal/metrics"
	"github.com/pid-editor/backend/internal/models"
	"github.com/pid-editor/backend/internal/storage"
	"go.uber.org/zap"
)

// MaxCopies bounds how many items a single natural-language request may add.
const MaxCopies = 50

// ErrInvalidPosition is returned by MoveItem for non-finite coordinates.
var ErrInvalidPosition = errors.New("position must be finite")

// Deps are the collaborators shared by every session.
type Deps struct {
	Store  storage.Store
	Types  *storage.TypeResolver
	Parser llm.ItemParser
	Logger *zap.Logger
}

// classificationKeys are the fields the generated code depends on.
var classificationKeys = []string{
	models.FieldCategory,
	models.FieldType,
	models.FieldUnit,
	models.FieldSubUnit,
	models.FieldSequence,
	models.FieldSensorType,
}

// Diagram is the state of one editing session: the records, the unit arrangement and
// the last layout. Every mutation is applied and laid out locally first, then sent to
// the store; a store failure restores the previous state.
type Diagram struct {
	id     string
	deps   Deps
	engine func() *diagram.Engine
	logger *zap.Logger

	createdAt    time.Time
	lastAccessed atomic.Int64

	mu          sync.Mutex
	records     []models.Record
	arrangement models.UnitArrangement
	result      *diagram.Result

	subMu   sync.Mutex
	subs    map[int]chan models.Diagram
	nextSub int
}

type state struct {
	records     []models.Record
	arrangement models.UnitArrangement
	result      *diagram.Result
}

// NewDiagram creates an empty session. engine is consulted on every layout run so the
// palette can change while the session is open.
func NewDiagram(id string, deps Deps, engine func() *diagram.Engine, arrangement models.UnitArrangement) *Diagram {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Parser == nil {
		deps.Parser = llm.Disabled{}
	}
	d := &Diagram{
		id:          id,
		deps:        deps,
		engine:      engine,
		logger:      logger.With(zap.String("session", id)),
		createdAt:   time.Now(),
		arrangement: arrangement.Clone(),
		subs:        make(map[int]chan models.Diagram),
	}
	d.touch()
	d.result = d.engine().Build(nil, d.arrangement, diagram.Options{})
	return d
}

// ID returns the session id.
func (d *Diagram) ID() string {
	return d.id
}

func (d *Diagram) touch() {
	d.lastAccessed.Store(time.Now().UnixNano())
}

// LastAccessed returns when the session was last used.
func (d *Diagram) LastAccessed() time.Time {
	return time.Unix(0, d.lastAccessed.Load())
}

// Info summarizes the session.
func (d *Diagram) Info() models.SessionInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return models.SessionInfo{
		ID:           d.id,
		ItemCount:    len(d.result.Items),
		EdgeCount:    len(d.result.Edges),
		CreatedAt:    d.createdAt,
		LastAccessed: d.LastAccessed(),
	}
}

// Snapshot returns the current diagram. The slices are shared and must not be modified.
func (d *Diagram) Snapshot() models.Diagram {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.result.Diagram()
}

// Stats returns the placement statistics of the last layout run.
func (d *Diagram) Stats() diagram.Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.result.Stats
}

// Item returns the normalized item with the given id.
func (d *Diagram) Item(id string) (models.Item, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.itemByID(id)
}

// Load replaces the session records with the store contents and lays them out.
// Previously known node positions are kept. Computed codes are written back.
func (d *Diagram) Load(ctx context.Context) error {
	records, err := d.deps.Store.List(ctx)
	if err != nil {
		return fmt.Errorf("loading records: %w", err)
	}
	if d.deps.Types != nil {
		if err := d.deps.Types.ResolveRecords(ctx, records); err != nil {
			return fmt.Errorf("resolving types: %w", err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.touch()

	d.records = records
	d.relayout("load", diagram.Options{})
	d.writeBackCodes(ctx)

	d.logger.Info("session loaded",
		zap.Int("records", len(records)),
		zap.Int("nodes", len(d.result.Nodes)),
		zap.Int("edges", len(d.result.Edges)))
	return nil
}

// writeBackCodes stores computed codes for records that carry none. Failures are logged
// and leave the code computed on the next run.
func (d *Diagram) writeBackCodes(ctx context.Context) {
	for _, it := range d.result.Items {
		if !it.CodeGenerated {
			continue
		}
		idx := d.indexOf(it.ID)
		if idx < 0 {
			continue
		}
		if _, err := d.deps.Store.Update(ctx, it.ID, map[string]any{models.FieldCode: it.Code}); err != nil {
			d.logger.Warn("code write-back failed", zap.String("item", it.ID), zap.Error(err))
			continue
		}
		d.records[idx].Fields[models.FieldCode] = it.Code
	}
}

// AddItem adds one item described by fields and returns it as laid out.
func (d *Diagram) AddItem(ctx context.Context, fields map[string]any) (models.Item, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touch()
	return d.addLocked(ctx, fields)
}

func (d *Diagram) addLocked(ctx context.Context, fields map[string]any) (models.Item, error) {
	saved := d.save()

	tempID := "tmp-" + uuid.NewString()
	fields = models.CloneFields(fields)
	delete(fields, "id")
	d.records = append(d.records, models.Record{ID: tempID, Fields: fields})
	d.relayout("add", diagram.Options{})

	create := models.CloneFields(fields)
	if it, ok := d.itemByID(tempID); ok && it.CodeGenerated {
		create[models.FieldCode] = it.Code
	}

	var rec models.Record
	err := d.persist("create", saved, func() (err error) {
		rec, err = d.deps.Store.Create(ctx, create)
		return err
	})
	if err != nil {
		return models.Item{}, err
	}

	// The store assigns the real id; carry the temporary node position over to it.
	idx := d.indexOf(tempID)
	d.records[idx] = models.Record{ID: rec.ID, Fields: create, CreatedTime: rec.CreatedTime}
	d.relayout("add", diagram.Options{PreviousNodes: renameNode(d.result.Nodes, tempID, rec.ID)})

	it, _ := d.itemByID(rec.ID)
	return it, nil
}

// AddItems adds several items in order. Items added before a failure stay added.
func (d *Diagram) AddItems(ctx context.Context, batch []map[string]any) ([]models.Item, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touch()

	added := make([]models.Item, 0, len(batch))
	for _, fields := range batch {
		it, err := d.addLocked(ctx, fields)
		if err != nil {
			return added, err
		}
		added = append(added, it)
	}
	return added, nil
}

// UpdateItem merges patch into an item. Changing a classification field regenerates the
// code unless the patch supplies one; changing Unit or SubUnit also drops the stored
// position so the item is placed in its new lane.
func (d *Diagram) UpdateItem(ctx context.Context, id string, patch map[string]any) (models.Item, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touch()

	idx := d.indexOf(id)
	if idx < 0 {
		return models.Item{}, fmt.Errorf("item %s: %w", id, storage.ErrNotFound)
	}
	saved := d.save()
	before, _ := d.itemByID(id)

	patch = models.CloneFields(patch)
	delete(patch, "id")
	_, hasCode := patch[models.FieldCode]
	_, hasItemCode := patch[models.FieldItemCode]
	if touchesAny(patch, classificationKeys) && !hasCode && !hasItemCode {
		patch[models.FieldCode] = nil
		if _, ok := d.records[idx].Fields[models.FieldItemCode]; ok {
			patch[models.FieldItemCode] = nil
		}
	}

	merged := applyPatch(d.records[idx].Fields, patch)
	after := diagram.Normalize([]models.Record{{ID: id, Fields: merged}})[0]
	if after.Unit != before.Unit || after.SubUnit != before.SubUnit {
		patch[models.FieldX] = nil
		patch[models.FieldY] = nil
		merged = applyPatch(merged, map[string]any{models.FieldX: nil, models.FieldY: nil})
	}
	d.records[idx].Fields = merged
	d.relayout("update", diagram.Options{})

	it, _ := d.itemByID(id)
	if it.CodeGenerated {
		patch[models.FieldCode] = it.Code
		d.records[idx].Fields[models.FieldCode] = it.Code
	}

	err := d.persist("update", saved, func() error {
		_, err := d.deps.Store.Update(ctx, id, patch)
		return err
	})
	if err != nil {
		return models.Item{}, err
	}
	return it, nil
}

// DeleteItem removes an item. Deleting an id the store no longer knows succeeds.
func (d *Diagram) DeleteItem(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touch()

	idx := d.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("item %s: %w", id, storage.ErrNotFound)
	}
	saved := d.save()

	d.records = append(d.records[:idx:idx], d.records[idx+1:]...)
	d.relayout("delete", diagram.Options{})

	return d.persist("delete", saved, func() error {
		err := d.deps.Store.Delete(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	})
}

// MoveItem stores an explicit position for an item.
func (d *Diagram) MoveItem(ctx context.Context, id string, pos models.Position) (models.Item, error) {
	if math.IsNaN(pos.X) || math.IsInf(pos.X, 0) || math.IsNaN(pos.Y) || math.IsInf(pos.Y, 0) {
		return models.Item{}, ErrInvalidPosition
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.touch()

	idx := d.indexOf(id)
	if idx < 0 {
		return models.Item{}, fmt.Errorf("item %s: %w", id, storage.ErrNotFound)
	}
	saved := d.save()

	patch := map[string]any{models.FieldX: pos.X, models.FieldY: pos.Y}
	d.records[idx].Fields = applyPatch(d.records[idx].Fields, patch)
	d.relayout("move", diagram.Options{PreviousNodes: moveNode(d.result.Nodes, id, pos)})

	err := d.persist("move", saved, func() error {
		_, err := d.deps.Store.Update(ctx, id, patch)
		return err
	})
	if err != nil {
		return models.Item{}, err
	}
	it, _ := d.itemByID(id)
	return it, nil
}

// SetArrangement replaces the unit arrangement. Item positions are kept; frames move.
func (d *Diagram) SetArrangement(arr models.UnitArrangement) models.UnitArrangement {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touch()

	d.arrangement = arr.Clone()
	d.relayout("arrangement", diagram.Options{})
	return d.arrangement.Clone()
}

// Reposition recomputes the positions of the given items, or of every item when ids is
// empty, and stores the new positions.
func (d *Diagram) Reposition(ctx context.Context, ids []string) (diagram.Stats, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touch()

	opts := diagram.Options{RepositionAll: len(ids) == 0}
	if len(ids) > 0 {
		opts.Reposition = make(map[string]bool, len(ids))
		for _, id := range ids {
			if d.indexOf(id) < 0 {
				return diagram.Stats{}, fmt.Errorf("item %s: %w", id, storage.ErrNotFound)
			}
			opts.Reposition[id] = true
		}
	}

	saved := d.save()
	d.relayout("reposition", opts)

	// Persisted positions would otherwise bring the old spot back on the next load.
	var written []string
	for _, n := range d.result.Nodes {
		if n.IsFrame() || !(opts.RepositionAll || opts.Reposition[n.ID]) {
			continue
		}
		idx := d.indexOf(n.ID)
		if idx < 0 {
			continue
		}
		id := n.ID
		patch := map[string]any{models.FieldX: n.Position.X, models.FieldY: n.Position.Y}
		d.records[idx].Fields = applyPatch(d.records[idx].Fields, patch)
		err := d.persist("reposition", saved, func() error {
			if _, err := d.deps.Store.Update(ctx, id, patch); err != nil {
				d.revertPositions(ctx, saved, written)
				return err
			}
			return nil
		})
		if err != nil {
			return diagram.Stats{}, err
		}
		written = append(written, id)
	}
	return d.result.Stats, nil
}

// revertPositions writes the x/y held in saved back to the store for ids, clearing
// them where saved had none.
func (d *Diagram) revertPositions(ctx context.Context, saved state, ids []string) {
	for _, id := range ids {
		patch := map[string]any{models.FieldX: nil, models.FieldY: nil}
		for _, r := range saved.records {
			if r.ID != id {
				continue
			}
			if x, ok := r.Fields[models.FieldX]; ok {
				patch[models.FieldX] = x
			}
			if y, ok := r.Fields[models.FieldY]; ok {
				patch[models.FieldY] = y
			}
			break
		}
		if _, err := d.deps.Store.Update(ctx, id, patch); err != nil {
			d.logger.Error("position revert failed", zap.String("item", id), zap.Error(err))
		}
	}
}

// Relayout runs the engine again without touching the store, e.g. after a palette change.
func (d *Diagram) Relayout() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.relayout("refresh", diagram.Options{})
}

// ParseItem asks the natural-language parser about text. Item replies are expanded into
// Number copies with increasing Sequence and added; chat replies are returned as is.
func (d *Diagram) ParseItem(ctx context.Context, text string) (*models.ParseResult, []models.Item, error) {
	res, err := d.deps.Parser.ParseItem(ctx, text)
	if err != nil {
		return nil, nil, err
	}
	if !res.IsItem() {
		return res, nil, nil
	}

	added, err := d.AddItems(ctx, ExpandCopies(res.Item))
	if err != nil {
		return res, added, err
	}
	return res, added, nil
}

// ExpandCopies turns an item description with Number = n into n field bags, each with
// Number 1 and the Sequence (default 1) advanced by one per copy.
func ExpandCopies(fields map[string]any) []map[string]any {
	base := diagram.Normalize([]models.Record{{ID: "copy-base", Fields: fields}})[0]
	n := base.Number
	if n < 1 {
		n = 1
	}
	if n > MaxCopies {
		n = MaxCopies
	}

	out := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		f := models.CloneFields(fields)
		f[models.FieldNumber] = 1
		f[models.FieldSequence] = base.Sequence + i
		out = append(out, f)
	}
	return out
}

// Subscribe returns a channel receiving the diagram after every change. Slow readers
// only see the latest diagram. The returned func cancels the subscription.
func (d *Diagram) Subscribe() (<-chan models.Diagram, func()) {
	ch := make(chan models.Diagram, 1)

	d.subMu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = ch
	d.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.subMu.Lock()
			if _, ok := d.subs[id]; ok {
				delete(d.subs, id)
				close(ch)
			}
			d.subMu.Unlock()
		})
	}
}

// Close ends every subscription.
func (d *Diagram) Close() {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	for id, ch := range d.subs {
		close(ch)
		delete(d.subs, id)
	}
}

func (d *Diagram) publish() {
	snap := d.result.Diagram()

	d.subMu.Lock()
	defer d.subMu.Unlock()
	for _, ch := range d.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// relayout runs the engine over the current records. Callers hold mu.
func (d *Diagram) relayout(trigger string, opts diagram.Options) {
	if opts.PreviousNodes == nil && d.result != nil {
		opts.PreviousNodes = d.result.Nodes
	}

	start := time.Now()
	res := d.engine().Build(d.records, d.arrangement, opts)
	metrics.LayoutDuration.Observe(time.Since(start).Seconds())
	metrics.LayoutRuns.WithLabelValues(trigger).Inc()
	metrics.ItemPlacements.WithLabelValues("reused").Add(float64(res.Stats.Reused))
	metrics.ItemPlacements.WithLabelValues("persisted").Add(float64(res.Stats.Persisted))
	metrics.ItemPlacements.WithLabelValues("placed").Add(float64(res.Stats.Placed))
	metrics.DroppedConnections.Add(float64(res.Stats.DroppedConnections))

	d.logger.Debug("layout",
		zap.String("trigger", trigger),
		zap.Int("items", len(res.Items)),
		zap.Int("reused", res.Stats.Reused),
		zap.Int("placed", res.Stats.Placed),
		zap.Duration("took", time.Since(start)))

	d.result = res
	d.arrangement = res.Arrangement
	d.publish()
}

func (d *Diagram) save() state {
	records := make([]models.Record, len(d.records))
	for i, r := range d.records {
		records[i] = r.Clone()
	}
	return state{records: records, arrangement: d.arrangement.Clone(), result: d.result}
}

func (d *Diagram) restore(s state) {
	d.records = s.records
	d.arrangement = s.arrangement
	d.result = s.result
	d.publish()
}

// persist runs a store call and rolls back to saved when it fails.
func (d *Diagram) persist(op string, saved state, call func() error) error {
	if err := call(); err != nil {
		metrics.StoreErrors.WithLabelValues(op).Inc()
		d.logger.Warn("store call failed, rolled back", zap.String("op", op), zap.Error(err))
		d.restore(saved)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (d *Diagram) indexOf(id string) int {
	for i, r := range d.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (d *Diagram) itemByID(id string) (models.Item, bool) {
	for _, it := range d.result.Items {
		if it.ID == id {
			return it, true
		}
	}
	return models.Item{}, false
}

func applyPatch(base, patch map[string]any) map[string]any {
	out := models.CloneFields(base)
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

func touchesAny(patch map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := patch[k]; ok {
			return true
		}
	}
	return false
}

func renameNode(nodes []models.Node, from, to string) []models.Node {
	out := make([]models.Node, len(nodes))
	copy(out, nodes)
	for i := range out {
		if out[i].ID == from {
			out[i].ID = to
		}
	}
	return out
}

func moveNode(nodes []models.Node, id string, pos models.Position) []models.Node {
	out := make([]models.Node, len(nodes))
	copy(out, nodes)
	for i := range out {
		if out[i].ID == id {
			out[i].Position = pos
		}
	}
	return out
}
