package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const usersCollection = "users"

// MongoStore は MongoDB の users コレクションに保存する Store です。
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// OpenMongo は MongoDB に接続し、疎通確認とインデックス作成を行います。
func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(usersCollection),
	}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// Collection は同じデータベースの別コレクションを返します。
func (s *MongoStore) Collection(name string) *mongo.Collection {
	return s.coll.Database().Collection(name)
}

// ensureIndexes はユーザー名と各IdPのIDに、値がある場合のみ一意となるインデックスを張ります。
func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	models := make([]mongo.IndexModel, 0, 3)
	for _, field := range []string{"username", "google_id", "facebook_id"} {
		models = append(models, mongo.IndexModel{
			Keys: bson.D{{Key: field, Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{field: bson.M{"$gt": ""}}),
		})
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.coll.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *MongoStore) FindByID(ctx context.Context, id string) (*User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *MongoStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	if username == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, bson.M{"username": username})
}

func (s *MongoStore) FindOrCreateByProvider(ctx context.Context, p Provider, providerID string, seed *User) (*User, bool, error) {
	if err := validateProvider(p, providerID); err != nil {
		return nil, false, err
	}

	doc := seed.clone()
	if doc == nil {
		doc = &User{}
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	onInsert := bson.M{
		"_id":        doc.ID,
		"created_at": doc.CreatedAt,
		"updated_at": doc.UpdatedAt,
	}
	for field, value := range map[string]string{
		"username": doc.Username,
		"name":     doc.Name,
		"email":    doc.Email,
	} {
		if value != "" {
			onInsert[field] = value
		}
	}

	// フィルタの等価条件は upsert 時にそのまま挿入されるので onInsert には含めない
	filter := bson.M{providerKey(p): providerID}
	res, err := s.coll.UpdateOne(ctx, filter,
		bson.M{"$setOnInsert": onInsert},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		// 同時実行で一意インデックスに負けた場合は既存レコードを読む
		if !mongo.IsDuplicateKeyError(err) {
			return nil, false, err
		}
	}
	created := res != nil && res.UpsertedCount > 0

	u, err := s.findOne(ctx, filter)
	if err != nil {
		return nil, false, err
	}
	return u, created, nil
}

func (s *MongoStore) Save(ctx context.Context, u *User) error {
	u.UpdatedAt = time.Now().UTC()
	res, err := s.coll.UpdateByID(ctx, u.ID, bson.M{"$set": bson.M{
		"username":    u.Username,
		"name":        u.Name,
		"email":       u.Email,
		"password":    u.Password,
		"google_id":   u.GoogleID,
		"facebook_id": u.FacebookID,
		"secret":      u.Secret,
		"updated_at":  u.UpdatedAt,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ListWithSecrets(ctx context.Context) ([]*User, error) {
	cur, err := s.coll.Find(ctx,
		bson.M{"secret": bson.M{"$nin": bson.A{nil, ""}}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []*User{}
	for cur.Next(ctx) {
		var u User
		if err := cur.Decode(&u); err != nil {
			return nil, err
		}
		out = append(out, &u)
	}
	return out, cur.Err()
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*User, error) {
	var u User
	if err := s.coll.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}
