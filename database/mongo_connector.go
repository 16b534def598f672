/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomoncle/hummer-mongodb/query"
	"github.com/tomoncle/hummer-mongodb/schema"
	"github.com/tomoncle/hummer-mongodb/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoConnector stores records as documents through the native driver.
// One client is shared by every model.
type MongoConnector struct {
	client *mongo.Client
	db     *mongo.Database
	logger Logger
}

// NewMongoConnector wraps an already connected client.
func NewMongoConnector(client *mongo.Client, dbName string, logger Logger) *MongoConnector {
	if logger == nil {
		logger = GetLogger()
	}
	return &MongoConnector{client: client, db: client.Database(dbName), logger: logger}
}

func (c *MongoConnector) Name() string { return TypeMongoDB }

func (c *MongoConnector) Client() *mongo.Client { return c.client }

func (c *MongoConnector) Database() *mongo.Database { return c.db }

func (c *MongoConnector) collection(m *schema.Model) *mongo.Collection {
	return c.db.Collection(m.CollectionName())
}

func (c *MongoConnector) Create(ctx context.Context, m *schema.Model, rec types.Record) (types.ID, error) {
	storage, id, err := m.PrepareCreate(rec)
	if err != nil {
		return types.ID{}, err
	}
	if _, err := c.collection(m).InsertOne(ctx, toDocument(m, storage)); err != nil {
		return types.ID{}, wrapError(m.Name, "create", id.String(), err)
	}
	return id, nil
}

func (c *MongoConnector) Find(ctx context.Context, m *schema.Model, f *types.Filter) ([]types.Record, error) {
	tr := query.NewMongoTranslator(m)
	var where types.Where
	if f != nil {
		where = f.Where
	}
	cur, err := c.collection(m).Find(ctx, tr.Where(where), tr.FindOptions(f))
	if err != nil {
		return nil, wrapError(m.Name, "find", "", err)
	}
	defer cur.Close(ctx)

	out := make([]types.Record, 0)
	for cur.Next(ctx) {
		rec, err := types.FromBSON(cur.Current)
		if err != nil {
			return nil, fmt.Errorf("%s.find: %w", m.Name, err)
		}
		out = append(out, m.Present(rec))
	}
	if err := cur.Err(); err != nil {
		return nil, wrapError(m.Name, "find", "", err)
	}
	return out, nil
}

func (c *MongoConnector) FindByID(ctx context.Context, m *schema.Model, id any, fields types.Fields) (types.Record, error) {
	nid, err := m.NormalizeID(id)
	if err != nil {
		return nil, err
	}
	tr := query.NewMongoTranslator(m)
	filter := bson.D{{Key: types.DocumentIDKey, Value: nid.StorageValue()}}
	raw, err := c.collection(m).FindOne(ctx, filter, tr.FindOneOptions(fields)).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &NotFoundError{Model: m.Name, ID: nid.String()}
	}
	if err != nil {
		return nil, wrapError(m.Name, "findById", nid.String(), err)
	}
	rec, err := types.FromBSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%s.findById: %w", m.Name, err)
	}
	return m.Present(rec), nil
}

func (c *MongoConnector) Count(ctx context.Context, m *schema.Model, where types.Where) (int64, error) {
	n, err := c.collection(m).CountDocuments(ctx, query.NewMongoTranslator(m).Where(where))
	if err != nil {
		return 0, wrapError(m.Name, "count", "", err)
	}
	return n, nil
}

// UpdateOrCreate upserts by id with $set, so fields absent from rec keep
// their stored values.
func (c *MongoConnector) UpdateOrCreate(ctx context.Context, m *schema.Model, rec types.Record) (types.Record, error) {
	storage, err := m.PrepareUpdate(rec)
	if err != nil {
		return nil, err
	}
	id := storage.ID()
	if id.IsZero() {
		created, err := c.Create(ctx, m, rec)
		if err != nil {
			return nil, err
		}
		return c.FindByID(ctx, m, created, nil)
	}
	set := toDocument(m, storage.Without(types.IDKey))
	if len(set) == 0 {
		found, err := c.FindByID(ctx, m, id, nil)
		if errors.Is(err, ErrNotFound) {
			if _, err := c.Create(ctx, m, storage); err != nil {
				return nil, err
			}
			return c.FindByID(ctx, m, id, nil)
		}
		return found, err
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	filter := bson.D{{Key: types.DocumentIDKey, Value: id.StorageValue()}}
	update := bson.D{{Key: "$set", Value: set}}
	raw, err := c.collection(m).FindOneAndUpdate(ctx, filter, update, opts).Raw()
	if err != nil {
		return nil, wrapError(m.Name, "updateOrCreate", id.String(), err)
	}
	out, err := types.FromBSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%s.updateOrCreate: %w", m.Name, err)
	}
	return m.Present(out), nil
}

func (c *MongoConnector) UpdateAll(ctx context.Context, m *schema.Model, where types.Where, data types.Record) (int64, error) {
	storage, err := m.PrepareUpdate(data)
	if err != nil {
		return 0, err
	}
	set := toDocument(m, storage.Without(types.IDKey))
	if len(set) == 0 {
		return 0, nil
	}
	res, err := c.collection(m).UpdateMany(ctx,
		query.NewMongoTranslator(m).Where(where),
		bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return 0, wrapError(m.Name, "updateAll", "", err)
	}
	return res.MatchedCount, nil
}

func (c *MongoConnector) DestroyAll(ctx context.Context, m *schema.Model, where types.Where) (int64, error) {
	res, err := c.collection(m).DeleteMany(ctx, query.NewMongoTranslator(m).Where(where))
	if err != nil {
		return 0, wrapError(m.Name, "destroyAll", "", err)
	}
	return res.DeletedCount, nil
}

// Autoupdate creates the indexes implied by the model. Index definitions
// that already exist with different options are logged and skipped.
func (c *MongoConnector) Autoupdate(ctx context.Context, m *schema.Model) error {
	indexes := m.Indexes()
	if len(indexes) == 0 {
		return nil
	}
	models := make([]mongo.IndexModel, 0, len(indexes))
	for _, idx := range indexes {
		opts := options.Index().SetName(idx.Name)
		if idx.Unique {
			opts.SetUnique(true)
		}
		models = append(models, mongo.IndexModel{
			Keys:    bson.D{{Key: idx.Field, Value: 1}},
			Options: opts,
		})
	}
	names, err := c.collection(m).Indexes().CreateMany(ctx, models)
	if err != nil {
		if is, kind := Classify(err); is && kind == ExistIndexErr {
			c.logger.Warn("Index already exists with different options", "model", m.Name, "error", err)
			return nil
		}
		return wrapError(m.Name, "autoupdate", "", err)
	}
	c.logger.Debug("Indexes synced", "model", m.Name, "collection", m.CollectionName(), "indexes", names)
	return nil
}

func (c *MongoConnector) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx, readpref.Primary()); err != nil {
		return &ConnectionError{Op: "ping", Err: err}
	}
	return nil
}

func (c *MongoConnector) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
