package mongo

import (
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"github.com/04d4/spinta/internal/endpoint"
)

// typeAlias returns the $type alias of a BSON type.
func typeAlias(t bsontype.Type) string {
	switch t {
	case bsontype.Double:
		return "double"
	case bsontype.String:
		return "string"
	case bsontype.EmbeddedDocument:
		return "object"
	case bsontype.Array:
		return "array"
	case bsontype.Binary:
		return "binData"
	case bsontype.Undefined:
		return "undefined"
	case bsontype.ObjectID:
		return "objectId"
	case bsontype.Boolean:
		return "bool"
	case bsontype.DateTime:
		return "date"
	case bsontype.Null:
		return "null"
	case bsontype.Regex:
		return "regex"
	case bsontype.DBPointer:
		return "dbPointer"
	case bsontype.JavaScript:
		return "javascript"
	case bsontype.Symbol:
		return "symbol"
	case bsontype.CodeWithScope:
		return "javascriptWithScope"
	case bsontype.Int32:
		return "int"
	case bsontype.Timestamp:
		return "timestamp"
	case bsontype.Int64:
		return "long"
	case bsontype.Decimal128:
		return "decimal"
	case bsontype.MinKey:
		return "minKey"
	case bsontype.MaxKey:
		return "maxKey"
	}
	return t.String()
}

// shape accumulates what was seen at one field path.
type shape struct {
	counts  map[string]int
	order   []string // first-seen order of types, for stable tie breaks
	nulls   int
	docs    int // documents containing the path at least once
	lastDoc int
}

func (s *shape) observe(alias string) {
	if s.counts[alias] == 0 {
		s.order = append(s.order, alias)
	}
	s.counts[alias]++
}

// Inferrer builds a structural union of document shapes. Paths are kept in
// first-seen order; nested documents produce dotted paths and array items
// produce "<path>[]" paths.
type Inferrer struct {
	shapes *orderedmap.OrderedMap[string, *shape]
	docs   int
}

// NewInferrer creates an empty inferrer.
func NewInferrer() *Inferrer {
	return &Inferrer{shapes: orderedmap.New[string, *shape]()}
}

// Add folds one document into the union.
func (in *Inferrer) Add(doc bson.Raw) error {
	in.docs++
	return in.walk("", doc)
}

func (in *Inferrer) walk(prefix string, doc bson.Raw) error {
	elems, err := doc.Elements()
	if err != nil {
		return err
	}
	for _, e := range elems {
		path := e.Key()
		if prefix != "" {
			path = prefix + "." + path
		}
		if err := in.value(path, e.Value()); err != nil {
			return err
		}
	}
	return nil
}

func (in *Inferrer) value(path string, v bson.RawValue) error {
	s := in.shape(path)
	switch v.Type {
	case bsontype.Null, bsontype.Undefined:
		s.nulls++
		return nil
	}
	s.observe(typeAlias(v.Type))

	switch v.Type {
	case bsontype.EmbeddedDocument:
		return in.walk(path, v.Document())
	case bsontype.Array:
		items, err := v.Array().Values()
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := in.value(path+"[]", item); err != nil {
				return err
			}
		}
	}
	return nil
}

func (in *Inferrer) shape(path string) *shape {
	s, ok := in.shapes.Get(path)
	if !ok {
		s = &shape{counts: make(map[string]int)}
		in.shapes.Set(path, s)
	}
	if s.lastDoc != in.docs {
		s.lastDoc = in.docs
		s.docs++
	}
	return s
}

// Sampled returns the number of documents added.
func (in *Inferrer) Sampled() int { return in.docs }

// Fields returns one field per path. A field is nullable when some sampled
// document lacks it or holds null there; _id is the primary key.
func (in *Inferrer) Fields() []*endpoint.Field {
	fields := make([]*endpoint.Field, 0, in.shapes.Len())
	pos := 0
	for pair := in.shapes.Oldest(); pair != nil; pair = pair.Next() {
		path, s := pair.Key, pair.Value
		pos++

		obs := make([]endpoint.Observation, 0, len(s.order))
		for _, alias := range s.order {
			obs = append(obs, endpoint.Observation{NativeType: alias, Count: s.counts[alias]})
		}
		sort.SliceStable(obs, func(i, j int) bool { return obs[i].Count > obs[j].Count })

		f := &endpoint.Field{
			Name:         path,
			Nullable:     s.nulls > 0 || s.docs < in.docs,
			PrimaryKey:   path == "_id",
			Position:     pos,
			Observations: obs,
			Sampled:      in.docs,
		}
		switch len(obs) {
		case 0:
			f.NativeType = "null"
		case 1:
			f.NativeType = obs[0].NativeType
		default:
			f.NativeType = endpoint.JoinNative(f.ObservedTypes())
		}
		if f.PrimaryKey {
			f.Nullable = false
		}
		fields = append(fields, f)
	}
	return fields
}
