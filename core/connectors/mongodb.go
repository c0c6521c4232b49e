package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoOptions "go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"golang.org/x/sync/errgroup"

	"github.com/kilnworks/kiln/core/datasource"
	"github.com/kilnworks/kiln/core/schema"
	"github.com/kilnworks/kiln/core/shared/errors"
	"github.com/kilnworks/kiln/core/shared/logging"
)

// MongoDBConnector is the schema-introspection backend for the document
// store family.
type MongoDBConnector struct {
	client   *mongo.Client
	database string
}

// NewMongoDB builds a client for the descriptor. The driver connects lazily;
// the first round trip happens on Ping or Describe.
func NewMongoDB(desc *datasource.Descriptor) (*MongoDBConnector, error) {
	if desc.Database == "" {
		return nil, errors.New(errors.ErrCodeMalformedConnectionString,
			fmt.Sprintf("mongodb connection string %q has no database name", desc.URL))
	}

	client, err := mongo.Connect(mongoOptions.Client().ApplyURI(desc.URL))
	if err != nil {
		return nil, normalizeMongoError(err)
	}

	return &MongoDBConnector{client: client, database: desc.Database}, nil
}

func (m *MongoDBConnector) Family() datasource.Family { return datasource.FamilyMongoDB }

func (m *MongoDBConnector) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return normalizeMongoError(err)
	}
	return nil
}

// Describe lists the collections of the bound database and derives each
// collection's shape from its indexes and one sampled document. A collection
// with no documents still appears, with only its _id field.
func (m *MongoDBConnector) Describe(ctx context.Context) (*schema.DatabaseDescription, error) {
	log := logging.New("connector:mongodb")
	log.Debug().Str("database", m.database).Msg("describing schema")

	db := m.client.Database(m.database)

	names, err := db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, normalizeMongoError(err)
	}
	sort.Strings(names)

	// Collections are sampled concurrently; each goroutine writes its own
	// slot so the sorted order survives.
	desc := &schema.DatabaseDescription{Name: m.database}
	desc.Tables = make([]schema.TableDescription, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			table, err := m.describeCollection(gctx, db.Collection(name))
			if err != nil {
				return err
			}
			desc.Tables[i] = *table
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Debug().Int("collections", len(desc.Tables)).Msg("schema described")
	return desc, nil
}

func (m *MongoDBConnector) describeCollection(ctx context.Context, coll *mongo.Collection) (*schema.TableDescription, error) {
	table := &schema.TableDescription{
		Name:       coll.Name(),
		PrimaryKey: []string{"_id"},
		Columns: []schema.ColumnDescription{
			{Name: "_id", DataType: "objectId"},
		},
	}
	seen := map[string]bool{"_id": true}

	var sample bson.D
	err := coll.FindOne(ctx, bson.D{}).Decode(&sample)
	if err != nil && err != mongo.ErrNoDocuments {
		return nil, normalizeMongoError(err)
	}
	for _, elem := range sample {
		if seen[elem.Key] {
			continue
		}
		seen[elem.Key] = true
		table.Columns = append(table.Columns, schema.ColumnDescription{
			Name:     elem.Key,
			DataType: bsonTypeName(elem.Value),
			Nullable: true,
		})
	}

	cursor, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, normalizeMongoError(err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var idx struct {
			Name   string `bson:"name"`
			Key    bson.D `bson:"key"`
			Unique bool   `bson:"unique"`
		}
		if err := cursor.Decode(&idx); err != nil {
			return nil, normalizeMongoError(err)
		}
		if idx.Name == "_id_" {
			continue
		}
		index := schema.IndexDescription{Name: idx.Name, Unique: idx.Unique}
		for _, key := range idx.Key {
			index.Columns = append(index.Columns, key.Key)
			if !seen[key.Key] {
				seen[key.Key] = true
				table.Columns = append(table.Columns, schema.ColumnDescription{
					Name: key.Key, DataType: "string", Nullable: true,
				})
			}
		}
		table.Indexes = append(table.Indexes, index)
	}
	if err := cursor.Err(); err != nil {
		return nil, normalizeMongoError(err)
	}

	return table, nil
}

// bsonTypeName names a decoded BSON value's native type for the description.
func bsonTypeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case int32, int:
		return "int"
	case int64:
		return "long"
	case float32, float64:
		return "double"
	case bool:
		return "bool"
	case bson.ObjectID:
		return "objectId"
	case bson.DateTime:
		return "datetime"
	case bson.Decimal128:
		return "decimal128"
	case bson.Binary:
		return "binData"
	case bson.A:
		return "array"
	case bson.D, bson.M:
		return "object"
	default:
		return "object"
	}
}

// Execute runs a raw database command. The statement must be a JSON object;
// key order is preserved because the command name has to stay the first key.
func (m *MongoDBConnector) Execute(ctx context.Context, statement string, params map[string]any) ([]map[string]any, error) {
	cmd, err := decodeCommand([]byte(statement))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryError, "mongodb statement must be a JSON command document", err)
	}

	var result bson.M
	if err := m.client.Database(m.database).RunCommand(ctx, cmd).Decode(&result); err != nil {
		return nil, normalizeMongoError(err)
	}

	// find/aggregate wrap their documents in a cursor batch.
	if cursor, ok := result["cursor"].(bson.M); ok {
		if batch, ok := cursor["firstBatch"].(bson.A); ok {
			results := make([]map[string]any, 0, len(batch))
			for _, doc := range batch {
				if d, ok := doc.(bson.M); ok {
					results = append(results, bsonToMap(d))
				}
			}
			return results, nil
		}
	}

	return []map[string]any{bsonToMap(result)}, nil
}

// decodeCommand parses a JSON command into an order-preserving bson.D.
func decodeCommand(raw []byte) (bson.D, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	t, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := t.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("command must be a JSON object")
	}

	var d bson.D
	for dec.More() {
		t, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key := t.(string)

		var val any
		if err := dec.Decode(&val); err != nil {
			return nil, err
		}
		d = append(d, bson.E{Key: key, Value: val})
	}
	return d, nil
}

func bsonToMap(doc bson.M) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = bsonValue(v)
	}
	return out
}

func bsonValue(v any) any {
	switch val := v.(type) {
	case bson.M:
		return bsonToMap(val)
	case bson.D:
		out := make(map[string]any, len(val))
		for _, elem := range val {
			out[elem.Key] = bsonValue(elem.Value)
		}
		return out
	case bson.A:
		arr := make([]any, len(val))
		for i, item := range val {
			arr[i] = bsonValue(item)
		}
		return arr
	case bson.ObjectID:
		return val.Hex()
	case bson.DateTime:
		return val.Time()
	case bson.Decimal128:
		return val.String()
	default:
		return v
	}
}

// Close disconnects the client, releasing its pooled connections.
func (m *MongoDBConnector) Close() error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
