package odoo

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/sambeau/odoorpc/pkg/odoo/domain"
	perrors "github.com/sambeau/odoorpc/pkg/odoo/errors"
)

// IDName is a record id with its display name, when known.
type IDName struct {
	ID   int
	Name string
}

// recordCache holds the field values of a single record.
type recordCache struct {
	mu     sync.Mutex
	values map[string]any
	full   bool
}

func (c *recordCache) get(name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[name]
	return v, ok
}

func (c *recordCache) set(values map[string]any, full bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[string]any, len(values))
	}
	for k, v := range values {
		c.values[k] = v
	}
	c.full = c.full || full
}

func (c *recordCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = nil
	c.full = false
}

// Records is an ordered list of records of one model. It is either a
// single record, created by Model.Record, Model.Get or EnsureOne, or a
// collection which may hold any number of ids, duplicates included.
//
// A single record caches its field values: the first Get loads the whole
// row, and Write, Unlink, Call and Refresh drop the cache. Collections
// are never cached. A single record with id 0 is empty.
type Records struct {
	model   *Model
	idnames []IDName
	single  bool
	cache   *recordCache
}

func newRecords(m *Model, idnames []IDName) Records {
	return Records{model: m, idnames: idnames}
}

func newSingle(m *Model, in IDName) Records {
	return Records{model: m, idnames: []IDName{in}, single: true, cache: &recordCache{}}
}

// Model returns the model of the records.
func (r Records) Model() *Model { return r.model }

// Env returns the environment of the records.
func (r Records) Env() *Env {
	if r.model == nil {
		return nil
	}
	return r.model.env
}

// IsSingle reports whether r is a single record rather than a collection.
func (r Records) IsSingle() bool { return r.single }

// ID returns the id of a single record, 0 for a collection.
func (r Records) ID() int {
	if !r.single {
		return 0
	}
	return r.idnames[0].ID
}

// IDs returns the ids in order.
func (r Records) IDs() []int {
	if r.single && r.idnames[0].ID == 0 {
		return []int{}
	}
	ids := make([]int, len(r.idnames))
	for i, in := range r.idnames {
		ids[i] = in.ID
	}
	return ids
}

// Len returns the number of ids.
func (r Records) Len() int {
	if r.single && r.idnames[0].ID == 0 {
		return 0
	}
	return len(r.idnames)
}

func (r Records) String() string {
	if r.model == nil {
		return "<RecordList>"
	}
	if r.single {
		return fmt.Sprintf("<Record '%s,%d'>", r.model.name, r.idnames[0].ID)
	}
	if len(r.idnames) > 16 {
		return fmt.Sprintf("<RecordList '%s,length=%d'>", r.model.name, len(r.idnames))
	}
	ids := make([]string, len(r.idnames))
	for i, in := range r.idnames {
		ids[i] = fmt.Sprint(in.ID)
	}
	return fmt.Sprintf("<RecordList '%s,[%s]'>", r.model.name, strings.Join(ids, ", "))
}

// At returns the record at index i. Negative indexes count from the end.
func (r Records) At(i int) Records {
	if i < 0 {
		i += len(r.idnames)
	}
	return newSingle(r.model, r.idnames[i])
}

// Slice returns the collection of the records between i and j.
func (r Records) Slice(i, j int) Records {
	return newRecords(r.model, slices.Clone(r.idnames[i:j]))
}

// List returns r as a collection.
func (r Records) List() Records {
	return newRecords(r.model, slices.Clone(r.idnames[:r.Len()]))
}

// All iterates over the single records in order.
func (r Records) All() iter.Seq2[int, Records] {
	return func(yield func(int, Records) bool) {
		for i := range r.Len() {
			if !yield(i, r.At(i)) {
				return
			}
		}
	}
}

// Get returns the value of field name. Relational values are records: a
// single record for many2one and reference fields, a collection for
// one2many and many2many fields. On a collection the result is a list of
// values in the order of the ids, a collection for many2one fields, or a
// list of collections for x2many fields.
func (r Records) Get(ctx context.Context, name string) (any, error) {
	if name == "id" {
		if r.single {
			return r.ID(), nil
		}
		return r.IDs(), nil
	}
	fields, err := r.model.fieldMap(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := fields[name]; !ok {
		return nil, perrors.NewUnknownField(r.model.name, name, fieldNames(fields))
	}
	if !r.single {
		return r.Read(ctx, name)
	}
	if r.ID() == 0 {
		return false, nil
	}
	if v, ok := r.cache.get(name); ok {
		return v, nil
	}

	res, err := r.model.env.Execute(ctx, r.model.name, "read", []any{r.ID()}, nil)
	if err != nil {
		return nil, err
	}
	row, ok := res.(map[string]any)
	if !ok {
		return false, nil
	}
	row = r.model.wrapValues(fields, row)
	r.cache.set(row, true)
	return row[name], nil
}

// Set writes one field of a single record.
func (r Records) Set(ctx context.Context, name string, value any) error {
	fields, err := r.model.fieldMap(ctx)
	if err != nil {
		return err
	}
	_, known := fields[name]
	switch {
	case !r.single && (known || name == "id"):
		return perrors.Newf("FIELD-0002", "Field", name)
	case name == "id":
		return perrors.Newf("FIELD-0003")
	case !known:
		return perrors.NewUnknownField(r.model.name, name, fieldNames(fields))
	}
	_, err = r.Write(ctx, map[string]any{name: value})
	return err
}

// Read reads fields, with the field specifications of Model.Read. On a
// single record the values read are cached. Relational values are wrapped
// as in Get.
func (r Records) Read(ctx context.Context, fields any) (any, error) {
	spec, err := ParseFieldSpec(fields)
	if err != nil {
		return nil, err
	}
	meta, err := r.model.fieldMap(ctx)
	if err != nil {
		return nil, err
	}

	if r.single {
		res, err := r.model.Read(ctx, r.ID(), fields, nil)
		if err != nil {
			return nil, err
		}
		switch {
		case spec.Format != "":
			return res, nil
		case spec.Single:
			name := spec.Names[0]
			v := r.model.wrapValue(meta, name, res)
			r.cache.set(map[string]any{name: v}, false)
			return v, nil
		}
		row, ok := res.(map[string]any)
		if !ok {
			return res, nil
		}
		row = r.model.wrapValues(meta, row)
		r.cache.set(row, spec.Names == nil)
		return row, nil
	}

	values := []any{}
	if r.Len() > 0 {
		res, err := r.model.Read(ctx, r.IDs(), fields, KW{"order": true})
		if err != nil {
			return nil, err
		}
		values, _ = res.([]any)
	}
	if spec.Format != "" {
		return values, nil
	}
	if !spec.Single {
		for i, v := range values {
			if row, ok := v.(map[string]any); ok {
				values[i] = r.model.wrapValues(meta, row)
			}
		}
		return values, nil
	}

	field, ok := meta[spec.Names[0]]
	if !ok {
		return values, nil
	}
	if rel := field.Relation(); rel != "" {
		relModel := r.model.env.modelUnchecked(rel)
		if field.Type() == "many2one" || len(values) == 0 {
			idnames := make([]IDName, len(values))
			for i, v := range values {
				idnames[i] = idNameOf(v)
			}
			return newRecords(relModel, idnames), nil
		}
		out := make([]Records, len(values))
		for i, v := range values {
			ids, _ := toIDs(v)
			out[i] = relModel.Browse(ids...)
		}
		return out, nil
	}
	if field.Type() == "reference" {
		for i, v := range values {
			values[i] = r.model.wrapValue(meta, spec.Names[0], v)
		}
	}
	return values, nil
}

// Write writes values to every record. Empty records are left alone.
func (r Records) Write(ctx context.Context, values map[string]any) (bool, error) {
	if r.Len() == 0 {
		return true, nil
	}
	fields, err := r.model.fieldMap(ctx)
	if err != nil {
		return false, err
	}
	vals, err := r.model.unwrapValues(fields, values)
	if err != nil {
		return false, err
	}
	res, err := r.model.env.Execute(ctx, r.model.name, "write", []any{r.IDs(), vals}, nil)
	r.Refresh()
	if err != nil {
		return false, err
	}
	return Truthy(res), nil
}

// Unlink deletes the records.
func (r Records) Unlink(ctx context.Context) (bool, error) {
	if r.Len() == 0 {
		return true, nil
	}
	res, err := r.model.env.Execute(ctx, r.model.name, "unlink", []any{r.IDs()}, nil)
	r.Refresh()
	if err != nil {
		return false, err
	}
	return Truthy(res), nil
}

// Refresh drops the cached values of a single record.
func (r Records) Refresh() {
	if r.cache != nil {
		r.cache.clear()
	}
}

// Call executes a model method on the records. The ids are passed as the
// first parameter. On a single record the cache is dropped afterwards and
// a one element result is unwrapped.
func (r Records) Call(ctx context.Context, method string, params []any, kw KW) (any, error) {
	args := append([]any{r.IDs()}, params...)
	res, err := r.model.env.Execute(ctx, r.model.name, method, args, kw)
	if !r.single {
		return res, err
	}
	r.Refresh()
	if err != nil {
		return nil, err
	}
	if list, ok := res.([]any); ok && len(list) == 1 {
		return list[0], nil
	}
	return res, nil
}

func (r Records) checkModel(other Records, op string) error {
	if r.model == nil || r.model != other.model {
		return perrors.Newf("TYPE-0001", "Left", r, "Op", op, "Right", other)
	}
	return nil
}

func (r Records) concatIDs(op string, others []Records) ([]IDName, error) {
	idnames := slices.Clone(r.idnames[:r.Len()])
	for _, other := range others {
		if err := r.checkModel(other, op); err != nil {
			return nil, err
		}
		idnames = append(idnames, other.idnames[:other.Len()]...)
	}
	return idnames, nil
}

// Concat returns the records of r followed by those of others.
func (r Records) Concat(others ...Records) (Records, error) {
	idnames, err := r.concatIDs("+", others)
	if err != nil {
		return Records{}, err
	}
	return newRecords(r.model, idnames), nil
}

// Union is like Concat without duplicates or empty ids. The first
// occurrence of each id is kept.
func (r Records) Union(others ...Records) (Records, error) {
	idnames, err := r.concatIDs("|", others)
	if err != nil {
		return Records{}, err
	}
	seen := make(map[int]bool, len(idnames))
	out := idnames[:0]
	for _, in := range idnames {
		if in.ID != 0 && !seen[in.ID] {
			seen[in.ID] = true
			out = append(out, in)
		}
	}
	return newRecords(r.model, out), nil
}

// Difference returns the records of r not in other, in order.
func (r Records) Difference(other Records) (Records, error) {
	if err := r.checkModel(other, "-"); err != nil {
		return Records{}, err
	}
	drop := idSet(other)
	var out []IDName
	for _, in := range r.idnames[:r.Len()] {
		if !drop[in.ID] {
			out = append(out, in)
		}
	}
	return newRecords(r.model, out), nil
}

// Intersect returns the union of r restricted to the ids of other.
func (r Records) Intersect(other Records) (Records, error) {
	if err := r.checkModel(other, "&"); err != nil {
		return Records{}, err
	}
	u, _ := r.Union()
	keep := idSet(other)
	var out []IDName
	for _, in := range u.idnames {
		if keep[in.ID] {
			out = append(out, in)
		}
	}
	return newRecords(r.model, out), nil
}

func idSet(r Records) map[int]bool {
	set := make(map[int]bool, r.Len())
	for _, id := range r.IDs() {
		set[id] = true
	}
	return set
}

// Equal reports whether r and other are both single records or both
// collections of the same model with the same ids in the same order.
func (r Records) Equal(other Records) bool {
	if r.single != other.single || r.model != other.model || len(r.idnames) != len(other.idnames) {
		return false
	}
	for i := range r.idnames {
		if r.idnames[i].ID != other.idnames[i].ID {
			return false
		}
	}
	return true
}

// IsSubset reports whether the ids of r are all in other.
func (r Records) IsSubset(other Records) (bool, error) {
	if err := r.checkModel(other, "<="); err != nil {
		return false, err
	}
	return subset(idSet(r), idSet(other)), nil
}

// IsProperSubset is IsSubset with at least one id of other missing from r.
func (r Records) IsProperSubset(other Records) (bool, error) {
	if err := r.checkModel(other, "<"); err != nil {
		return false, err
	}
	a, b := idSet(r), idSet(other)
	return subset(a, b) && len(a) < len(b), nil
}

// IsSuperset reports whether r holds every id of other.
func (r Records) IsSuperset(other Records) (bool, error) {
	if err := r.checkModel(other, ">="); err != nil {
		return false, err
	}
	return subset(idSet(other), idSet(r)), nil
}

// IsProperSuperset is IsSuperset with at least one id of r not in other.
func (r Records) IsProperSuperset(other Records) (bool, error) {
	if err := r.checkModel(other, ">"); err != nil {
		return false, err
	}
	a, b := idSet(r), idSet(other)
	return subset(b, a) && len(b) < len(a), nil
}

func subset(a, b map[int]bool) bool {
	for id := range a {
		if !b[id] {
			return false
		}
	}
	return true
}

// Contains reports whether the single record item is in r.
func (r Records) Contains(item Records) (bool, error) {
	if err := r.checkModel(item, "in"); err != nil {
		return false, err
	}
	return item.Len() == 1 && slices.Contains(r.IDs(), item.IDs()[0]), nil
}

// EnsureOne returns the only record of r. Duplicates and empty ids are
// ignored; no call is made.
func (r Records) EnsureOne() (Records, error) {
	if r.single && r.ID() != 0 {
		return r, nil
	}
	if r.model != nil {
		if u, _ := r.Union(); u.Len() == 1 {
			return u.At(0), nil
		}
	}
	return Records{}, perrors.Newf("VALUE-0002", "Records", r)
}

// unionOf flattens read results made of records.
func unionOf(v any) (any, error) {
	switch x := v.(type) {
	case Records:
		return x.Union()
	case []Records:
		if len(x) == 0 {
			return v, nil
		}
		return x[0].Union(x[1:]...)
	}
	return v, nil
}

// Mapped reads the dot separated field path on the records. Relational
// steps are flattened into one collection without duplicates; the last
// step gives the values, in order.
func (r Records) Mapped(ctx context.Context, path string) (any, error) {
	var vals any = r.List()
	for _, name := range strings.Split(path, ".") {
		recs, ok := vals.(Records)
		if !ok {
			return nil, fmt.Errorf("mapped %q: %s follows a field which is not relational", path, name)
		}
		res, err := recs.Read(ctx, name)
		if err != nil {
			return nil, err
		}
		if vals, err = unionOf(res); err != nil {
			return nil, err
		}
	}
	return vals, nil
}

// MapFunc applies fn to each record. Results which are records are merged
// into one collection without duplicates.
func (r Records) MapFunc(fn func(Records) any) (any, error) {
	out := make([]any, 0, r.Len())
	var recs []Records
	for _, rec := range r.All() {
		v := fn(rec)
		out = append(out, v)
		if rv, ok := v.(Records); ok {
			recs = append(recs, rv)
		}
	}
	if len(recs) > 0 && len(recs) == len(out) {
		return unionOf(recs)
	}
	return out, nil
}

// Filtered keeps the records for which the dot separated field path is
// set. At each step, a record is kept when one of its related records
// passes the rest of the path.
func (r Records) Filtered(ctx context.Context, path string) (Records, error) {
	if path == "" {
		return r.List(), nil
	}
	idnames, err := r.List().filter(ctx, strings.Split(path, "."))
	if err != nil {
		return Records{}, err
	}
	return newRecords(r.model, idnames), nil
}

func (r Records) filter(ctx context.Context, attrs []string) ([]IDName, error) {
	res, err := r.Read(ctx, attrs[0])
	if err != nil {
		return nil, err
	}
	vals := alignedValues(res)

	var (
		idnames []IDName
		rels    []any
	)
	for i, in := range r.idnames {
		if i < len(vals) && Truthy(vals[i]) {
			idnames = append(idnames, in)
			rels = append(rels, vals[i])
		}
	}
	if len(idnames) == 0 || len(attrs) == 1 {
		return idnames, nil
	}

	relRecs := make([]Records, len(rels))
	for i, rel := range rels {
		rec, ok := rel.(Records)
		if !ok {
			return nil, fmt.Errorf("filtered: %s is not a relational field", attrs[0])
		}
		relRecs[i] = rec
	}
	next, err := relRecs[0].Union(relRecs[1:]...)
	if err != nil {
		return nil, err
	}
	passed, err := next.filter(ctx, attrs[1:])
	if err != nil {
		return nil, err
	}
	alive := make(map[int]bool, len(passed))
	for _, in := range passed {
		alive[in.ID] = true
	}

	var out []IDName
	for i, in := range idnames {
		if slices.ContainsFunc(relRecs[i].IDs(), func(id int) bool { return alive[id] }) {
			out = append(out, in)
		}
	}
	return out, nil
}

// alignedValues returns one value per record from the result of a
// single field read on a collection.
func alignedValues(res any) []any {
	switch x := res.(type) {
	case Records:
		out := make([]any, len(x.idnames))
		for i := range x.idnames {
			out[i] = x.At(i)
		}
		return out
	case []Records:
		out := make([]any, len(x))
		for i, rec := range x {
			out[i] = rec
		}
		return out
	case []any:
		return x
	}
	return nil
}

// FilteredFunc keeps the records for which keep returns true.
func (r Records) FilteredFunc(keep func(Records) bool) Records {
	var out []IDName
	for i, rec := range r.All() {
		if keep(rec) {
			out = append(out, r.idnames[i])
		}
	}
	return newRecords(r.model, out)
}

// FilteredDomain keeps the records matching the domain d, searched on the
// server.
func (r Records) FilteredDomain(ctx context.Context, d []any) (Records, error) {
	if r.Len() == 0 {
		return r.List(), nil
	}
	search := append([]any{domain.T("id", "in", anyInts(r.IDs()))}, d...)
	found, err := r.model.Search(ctx, search, nil)
	if err != nil {
		return Records{}, err
	}
	return r.Intersect(found)
}

// Sorted returns the records without duplicates in the default order of
// the model, as searched on the server.
func (r Records) Sorted(ctx context.Context, reverse bool) (Records, error) {
	recs, err := r.Union()
	if err != nil || recs.Len() < 2 {
		return recs, err
	}
	byID := make(map[int]IDName, recs.Len())
	for _, in := range recs.idnames {
		byID[in.ID] = in
	}
	d := []any{domain.T("id", "in", anyInts(recs.IDs()))}
	found, err := r.model.Search(ctx, d, KW{"reverse": reverse})
	if err != nil {
		return Records{}, err
	}
	out := make([]IDName, 0, found.Len())
	for _, id := range found.IDs() {
		out = append(out, byID[id])
	}
	return newRecords(r.model, out), nil
}

// SortedBy returns the records without duplicates sorted on the values of
// field. Records with equal values keep their order.
func (r Records) SortedBy(ctx context.Context, field string, reverse bool) (Records, error) {
	recs, err := r.Union()
	if err != nil || recs.Len() < 2 {
		return recs, err
	}
	res, err := recs.Read(ctx, field)
	if err != nil {
		return Records{}, err
	}
	vals := alignedValues(res)
	idx := make([]int, recs.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		c := compareValues(vals[idx[a]], vals[idx[b]])
		if reverse {
			return c > 0
		}
		return c < 0
	})
	out := make([]IDName, len(idx))
	for i, j := range idx {
		out[i] = recs.idnames[j]
	}
	return newRecords(r.model, out), nil
}

// SortedFunc returns the records without duplicates sorted with cmp.
func (r Records) SortedFunc(cmp func(a, b Records) int, reverse bool) Records {
	recs, err := r.Union()
	if err != nil || recs.Len() < 2 {
		return recs
	}
	out := slices.Clone(recs.idnames)
	slices.SortStableFunc(out, func(a, b IDName) int {
		c := cmp(newSingle(r.model, a), newSingle(r.model, b))
		if reverse {
			return -c
		}
		return c
	})
	return newRecords(r.model, out)
}

// compareValues orders field values: empty values first, then numbers,
// strings and records by id.
func compareValues(a, b any) int {
	ta, tb := Truthy(a), Truthy(b)
	switch {
	case !ta && !tb:
		return 0
	case !ta:
		return -1
	case !tb:
		return 1
	}
	switch x := a.(type) {
	case int, float64:
		if y, ok := number(b); ok {
			xf, _ := number(x)
			switch {
			case xf < y:
				return -1
			case xf > y:
				return 1
			}
			return 0
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case Records:
		if y, ok := b.(Records); ok {
			return slices.Compare(x.IDs(), y.IDs())
		}
	case bool:
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// Name returns the display name of a single record, or "model,id" when
// the server cannot tell.
func (r Records) Name(ctx context.Context) (string, error) {
	rec, err := r.EnsureOne()
	if err != nil {
		return "", err
	}
	if name := rec.idnames[0].Name; name != "" {
		return name, nil
	}

	name := fmt.Sprintf("%s,%d", r.model.name, rec.ID())
	if r.model.env.client.versionInfo >= 17.0 {
		res, err := r.model.env.Execute(ctx, r.model.name, "read", []any{rec.ID(), []string{"display_name"}}, nil)
		if row, ok := res.(map[string]any); err == nil && ok {
			if s, ok := row["display_name"].(string); ok {
				name = s
			}
		}
	} else {
		res, err := r.model.env.Execute(ctx, r.model.name, "name_get", []any{[]int{rec.ID()}}, nil)
		if list, ok := res.([]any); err == nil && ok && len(list) == 1 {
			if in := idNameOf(list[0]); in.Name != "" {
				name = in.Name
			}
		}
	}
	rec.idnames[0].Name = name
	return name, nil
}

// Exists returns the records which still exist on the server.
func (r Records) Exists(ctx context.Context) (Records, error) {
	if r.Len() == 0 {
		return r, nil
	}
	u, _ := r.Union()
	res, err := r.model.env.Execute(ctx, r.model.name, "exists", []any{u.IDs()}, nil)
	if err != nil {
		return Records{}, err
	}
	ids, _ := toIDs(res)
	if r.single {
		if len(ids) == 0 {
			return r.model.Record(0), nil
		}
		return r.model.Record(ids[0]), nil
	}
	return r.model.Browse(ids...), nil
}

// Copy duplicates the records, with values overridden by defaults. A
// collection is copied in one call on recent servers.
func (r Records) Copy(ctx context.Context, defaults map[string]any) (Records, error) {
	params := []any{r.IDs()}
	if r.single {
		params[0] = r.ID()
	} else if err := r.model.env.client.requireVersion("copying a record list", 18.0); err != nil {
		return Records{}, err
	}
	if len(defaults) > 0 {
		fields, err := r.model.fieldMap(ctx)
		if err != nil {
			return Records{}, err
		}
		vals, err := r.model.unwrapValues(fields, defaults)
		if err != nil {
			return Records{}, err
		}
		params = append(params, vals)
	}
	res, err := r.model.env.Execute(ctx, r.model.name, "copy", params, nil)
	if err != nil {
		return Records{}, err
	}
	ids, ok := toIDs(res)
	if !r.single {
		return r.model.Browse(ids...), nil
	}
	if !ok {
		id, _ := toInt(res)
		ids = []int{id}
	}
	if len(ids) == 0 {
		return r.model.Record(0), nil
	}
	return r.model.Record(ids[0]), nil
}

// Metadata returns the creation and update information of the records: a
// map for a single record, a list of maps for a collection.
func (r Records) Metadata(ctx context.Context) (any, error) {
	method := "get_metadata"
	if r.model.env.client.versionInfo < 8.0 {
		method = "perm_read"
	}
	res, err := r.model.env.Execute(ctx, r.model.name, method, []any{r.IDs()}, nil)
	if err != nil {
		return nil, err
	}
	if list, ok := res.([]any); ok && r.single {
		if len(list) == 0 {
			return nil, nil
		}
		return list[0], nil
	}
	return res, nil
}

// ExternalID returns one external id of a single record, or "".
func (r Records) ExternalID(ctx context.Context) (string, error) {
	rec, err := r.EnsureOne()
	if err != nil {
		return "", err
	}
	xmlids, err := r.model.ExternalIDs(ctx, []int{rec.ID()})
	if err != nil || len(xmlids) == 0 {
		return "", err
	}
	names := make([]string, 0, len(xmlids))
	for name := range xmlids {
		names = append(names, name)
	}
	sort.Strings(names)
	return names[0], nil
}

// ExternalIDs returns one external id per record, "" when there is none.
func (r Records) ExternalIDs(ctx context.Context) ([]string, error) {
	out := make([]string, r.Len())
	if r.Len() == 0 {
		return out, nil
	}
	xmlids, err := r.model.ExternalIDs(ctx, r.IDs())
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(xmlids))
	for name := range xmlids {
		names = append(names, name)
	}
	sort.Strings(names)
	byID := make(map[int]string, len(names))
	for _, name := range names {
		if id := xmlids[name].ID(); byID[id] == "" {
			byID[id] = name
		}
	}
	for i, id := range r.IDs() {
		out[i] = byID[id]
	}
	return out, nil
}

// SetExternalID registers xmlid, written module.name, for a single record.
func (r Records) SetExternalID(ctx context.Context, xmlid string) error {
	rec, err := r.EnsureOne()
	if err != nil {
		return err
	}
	module, name, ok := strings.Cut(xmlid, ".")
	if !ok || module == "" || name == "" || strings.Contains(name, ".") {
		return perrors.Newf("LOOKUP-0003", "XMLID", xmlid)
	}
	data := r.model.env.modelUnchecked("ir.model.data")
	d := []any{
		domain.Or, domain.And, domain.T("module", "=", module), domain.T("name", "=", name),
		domain.And, domain.T("model", "=", r.model.name), domain.T("res_id", "=", rec.ID()),
	}
	found, err := data.Search(ctx, d, nil)
	if err != nil {
		return err
	}
	if found.Len() > 0 {
		return perrors.Newf("VALUE-0003", "XMLID", xmlid)
	}
	_, err = data.Create(ctx, map[string]any{
		"model":  r.model.name,
		"res_id": rec.ID(),
		"module": module,
		"name":   name,
	})
	return err
}

// WithEnv returns the same records in env.
func (r Records) WithEnv(env *Env) Records {
	m := env.modelUnchecked(r.model.name)
	if r.single {
		return newSingle(m, r.idnames[0])
	}
	return newRecords(m, slices.Clone(r.idnames))
}

// Sudo returns the records in the superuser environment.
func (r Records) Sudo(ctx context.Context) (Records, error) {
	env, err := r.model.env.Sudo(ctx)
	if err != nil {
		return Records{}, err
	}
	return r.WithEnv(env), nil
}

// WithContext returns the records in an environment whose context is the
// current one updated with values.
func (r Records) WithContext(values Context) Records {
	return r.WithEnv(r.model.WithContext(values).env)
}
