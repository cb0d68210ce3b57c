// Package mongo implements the persistence store over MongoDB. Threads and
// messages live in their own collections; message variants are embedded
// documents updated with positional operators.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/huminex/t4chat/runtime/chat/message"
	"github.com/huminex/t4chat/runtime/chat/store"
)

const (
	defaultThreadsCollection  = "threads"
	defaultMessagesCollection = "messages"
	defaultOpTimeout          = 5 * time.Second
)

// Options configures the Mongo store.
type Options struct {
	Client             *mongodriver.Client
	Database           string
	ThreadsCollection  string
	MessagesCollection string
	Timeout            time.Duration
}

// Store is a Mongo-backed store.Store.
type Store struct {
	client   *mongodriver.Client
	threads  *mongodriver.Collection
	messages *mongodriver.Collection
	timeout  time.Duration
}

var _ store.Store = (*Store)(nil)

// New returns a Store backed by MongoDB.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	threadsColl := opts.ThreadsCollection
	if threadsColl == "" {
		threadsColl = defaultThreadsCollection
	}
	messagesColl := opts.MessagesCollection
	if messagesColl == "" {
		messagesColl = defaultMessagesCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	db := opts.Client.Database(opts.Database)
	s := &Store{
		client:   opts.Client,
		threads:  db.Collection(threadsColl),
		messages: db.Collection(messagesColl),
		timeout:  timeout,
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Connect dials MongoDB and returns a store over the given database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongodriver.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return New(Options{Client: client, Database: database})
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.messages.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "thread_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create messages index: %w", err)
	}
	_, err = s.threads.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create threads index: %w", err)
	}
	return nil
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// CreateThread persists a new thread.
func (s *Store) CreateThread(ctx context.Context, userID, title string) (*message.Thread, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	th := &message.Thread{
		ID:        shortuuid.New(),
		UserID:    userID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if _, err := s.threads.InsertOne(ctx, th); err != nil {
		return nil, fmt.Errorf("insert thread: %w", err)
	}
	return th, nil
}

// ListThreads returns the user's threads, most recent first.
func (s *Store) ListThreads(ctx context.Context, userID string) ([]*message.Thread, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	cur, err := s.threads.Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find threads: %w", err)
	}
	var out []*message.Thread
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode threads: %w", err)
	}
	return out, nil
}

// GetThread returns one thread.
func (s *Store) GetThread(ctx context.Context, id string) (*message.Thread, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	var th message.Thread
	err := s.threads.FindOne(ctx, bson.M{"_id": id}).Decode(&th)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find thread: %w", err)
	}
	return &th, nil
}

// UpdateThread applies title and pinned updates.
func (s *Store) UpdateThread(ctx context.Context, id string, upd store.ThreadUpdate) (*message.Thread, error) {
	set := bson.M{}
	if upd.Title != nil {
		set["title"] = *upd.Title
	}
	if upd.Pinned != nil {
		set["pinned"] = *upd.Pinned
	}
	if len(set) == 0 {
		return s.GetThread(ctx, id)
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	var th message.Thread
	err := s.threads.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&th)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update thread: %w", err)
	}
	return &th, nil
}

// DeleteThread removes a thread and all of its messages.
func (s *Store) DeleteThread(ctx context.Context, id string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	res, err := s.threads.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	if _, err := s.messages.DeleteMany(ctx, bson.M{"thread_id": id}); err != nil {
		return fmt.Errorf("delete thread messages: %w", err)
	}
	return nil
}

// CreateMessage persists a new message, creating the owning thread titled
// with the query when ThreadID is empty.
func (s *Store) CreateMessage(ctx context.Context, msg *message.Message) (*message.Message, error) {
	if msg == nil {
		return nil, errors.New("message is required")
	}
	if msg.UserID == "" {
		return nil, errors.New("user id is required")
	}
	m := msg.Clone()
	if m.ThreadID == "" {
		th, err := s.CreateThread(ctx, m.UserID, m.Query)
		if err != nil {
			return nil, err
		}
		m.ThreadID = th.ID
	} else if _, err := s.GetThread(ctx, m.ThreadID); err != nil {
		return nil, err
	}
	m.ID = shortuuid.New()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	for i := range m.Variants {
		if m.Variants[i].ID == "" {
			m.Variants[i].ID = shortuuid.New()
		}
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if _, err := s.messages.InsertOne(ctx, m); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// ListMessages returns a thread's messages ordered by creation time.
func (s *Store) ListMessages(ctx context.Context, threadID string) ([]*message.Message, error) {
	if _, err := s.GetThread(ctx, threadID); err != nil {
		return nil, err
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	cur, err := s.messages.Find(ctx, bson.M{"thread_id": threadID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	var out []*message.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return out, nil
}

// GetMessage returns one message.
func (s *Store) GetMessage(ctx context.Context, id string) (*message.Message, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	var m message.Message
	err := s.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find message: %w", err)
	}
	return &m, nil
}

// AppendVariant adds a response variant to a message.
func (s *Store) AppendVariant(ctx context.Context, messageID string, v message.Variant) (*message.Message, error) {
	if v.ID == "" {
		v.ID = shortuuid.New()
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	var m message.Message
	err := s.messages.FindOneAndUpdate(ctx,
		bson.M{"_id": messageID},
		bson.M{"$push": bson.M{"variants": v}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&m)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("append variant: %w", err)
	}
	return &m, nil
}

// UpdateVariant replaces a variant's content.
func (s *Store) UpdateVariant(ctx context.Context, messageID, variantID, content string) (*message.Message, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	var m message.Message
	err := s.messages.FindOneAndUpdate(ctx,
		bson.M{"_id": messageID, "variants.id": variantID},
		bson.M{"$set": bson.M{"variants.$.content": content}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&m)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update variant: %w", err)
	}
	return &m, nil
}

// DeleteMessage removes a message.
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	res, err := s.messages.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}
