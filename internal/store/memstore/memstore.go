// Package memstore is a process-local implementation of the store
// capability. Documents are kept as bson.D and queried with the same filter
// documents the MongoDB adapter receives.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/and161185/docrepo/internal/config"
	"github.com/and161185/docrepo/internal/model"
	"github.com/and161185/docrepo/internal/store"
)

// Operation names accepted by FailNext and Calls.
const (
	OpConnect          = "connect"
	OpListDatabases    = "listDatabases"
	OpListCollections  = "listCollections"
	OpCreateCollection = "createCollection"
	OpCount            = "count"
	OpFind             = "find"
	OpInsert           = "insert"
	OpReplace          = "replace"
	OpDelete           = "delete"
	OpCreateIndex      = "createIndex"
	OpPing             = "ping"
	OpDisconnect       = "disconnect"
)

// ErrDuplicateKey is returned when an insert or replace violates _id or a
// unique index.
var ErrDuplicateKey = errors.New("duplicate key")

type collection struct {
	docs     []bson.D
	opts     store.CreateCollectionOptions
	indexes  []model.Index
	settings store.Settings
}

type database struct {
	colls    map[string]*collection
	settings store.Settings
}

// Server holds every database of one in-memory deployment. It also acts as
// the store.Connector for it.
type Server struct {
	mu      sync.Mutex
	dbs     map[string]*database
	faults  map[string][]error
	calls   map[string]int
	creates []string
}

var _ store.Connector = (*Server)(nil)

// New returns an empty server.
func New() *Server {
	return &Server{
		dbs:    make(map[string]*database),
		faults: make(map[string][]error),
		calls:  make(map[string]int),
	}
}

// FailNext makes the next call of op return err. Calls queue in order.
func (s *Server) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = append(s.faults[op], err)
}

// Calls reports how many times op was invoked, failed calls included.
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// CreatedCollections lists explicit creations as "db.collection" in order.
func (s *Server) CreatedCollections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.creates)
}

// Indexes lists indexes created on a collection.
func (s *Server) Indexes(db, coll string) []model.Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.lookupLocked(db, coll); c != nil {
		return slices.Clone(c.indexes)
	}
	return nil
}

// CollectionOptions returns the options a collection was created with.
func (s *Server) CollectionOptions(db, coll string) (store.CreateCollectionOptions, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.lookupLocked(db, coll); c != nil {
		return c.opts, true
	}
	return store.CreateCollectionOptions{}, false
}

// DatabaseSettings returns the settings of the latest handle bound to db.
func (s *Server) DatabaseSettings(db string) store.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.dbs[db]; ok {
		return d.settings
	}
	return store.Settings{}
}

// CollectionSettings returns the settings of the latest handle bound to coll.
func (s *Server) CollectionSettings(db, coll string) store.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.lookupLocked(db, coll); c != nil {
		return c.settings
	}
	return store.Settings{}
}

// Documents returns a copy of every stored document, soft-deleted ones included.
func (s *Server) Documents(db, coll string) []bson.D {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.lookupLocked(db, coll); c != nil {
		return slices.Clone(c.docs)
	}
	return nil
}

// Seed creates a database with an empty collection, as if created earlier.
func (s *Server) Seed(db, coll string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collLocked(db, coll)
}

func (s *Server) enter(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enterLocked(op)
}

func (s *Server) enterLocked(op string) error {
	s.calls[op]++
	if q := s.faults[op]; len(q) > 0 {
		s.faults[op] = q[1:]
		return q[0]
	}
	return nil
}

func (s *Server) lookupLocked(db, coll string) *collection {
	d, ok := s.dbs[db]
	if !ok {
		return nil
	}
	return d.colls[coll]
}

func (s *Server) dbLocked(name string) *database {
	d, ok := s.dbs[name]
	if !ok {
		d = &database{colls: make(map[string]*collection)}
		s.dbs[name] = d
	}
	return d
}

// collLocked returns the collection, creating it implicitly.
func (s *Server) collLocked(db, coll string) *collection {
	d := s.dbLocked(db)
	c, ok := d.colls[coll]
	if !ok {
		c = &collection{}
		d.colls[coll] = c
	}
	return c
}

// Connect implements store.Connector.
func (s *Server) Connect(_ context.Context, _ config.Options) (store.Client, error) {
	if err := s.enter(OpConnect); err != nil {
		return nil, err
	}
	return &Client{srv: s}, nil
}

// Client is a connection to a Server.
type Client struct {
	srv    *Server
	closed atomic.Bool
}

func (c *Client) check(op string) error {
	if c.closed.Load() {
		return mongo.ErrClientDisconnected
	}
	return c.srv.enter(op)
}

func (c *Client) ListDatabaseNames(context.Context) ([]string, error) {
	if err := c.check(OpListDatabases); err != nil {
		return nil, err
	}
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	names := make([]string, 0, len(c.srv.dbs))
	for name, d := range c.srv.dbs {
		if len(d.colls) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (c *Client) Database(name string, st store.Settings) store.Database {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	c.srv.dbLocked(name).settings = st
	return &Database{client: c, name: name}
}

func (c *Client) Ping(context.Context) error { return c.check(OpPing) }

func (c *Client) Disconnect(context.Context) error {
	if err := c.check(OpDisconnect); err != nil {
		return err
	}
	c.closed.Store(true)
	return nil
}

// Database is a handle on one database of a Server.
type Database struct {
	client *Client
	name   string
}

func (d *Database) Name() string { return d.name }

func (d *Database) ListCollectionNames(_ context.Context, name string) ([]string, error) {
	if err := d.client.check(OpListCollections); err != nil {
		return nil, err
	}
	s := d.client.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupLocked(d.name, name) != nil {
		return []string{name}, nil
	}
	return []string{}, nil
}

func (d *Database) CreateCollection(_ context.Context, name string, opts store.CreateCollectionOptions) error {
	if err := d.client.check(OpCreateCollection); err != nil {
		return err
	}
	s := d.client.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupLocked(d.name, name) != nil {
		return fmt.Errorf("collection %s.%s already exists", d.name, name)
	}
	s.collLocked(d.name, name).opts = opts
	s.creates = append(s.creates, d.name+"."+name)
	return nil
}

func (d *Database) Collection(name string, st store.Settings) store.Collection {
	s := d.client.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.lookupLocked(d.name, name); c != nil {
		c.settings = st
	}
	return &Collection{db: d, name: name}
}

// Collection is a handle on one collection. It does not create the
// collection until the first write.
type Collection struct {
	db   *Database
	name string
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) srv() *Server { return c.db.client.srv }

// matching returns the indexes of documents matching filter. Caller holds the lock.
func (c *Collection) matching(filter any) (*collection, []int, error) {
	f, err := toDoc(filter)
	if err != nil {
		return nil, nil, fmt.Errorf("filter: %w", err)
	}
	coll := c.srv().lookupLocked(c.db.name, c.name)
	if coll == nil {
		return nil, nil, nil
	}
	var hits []int
	for i, d := range coll.docs {
		ok, err := match(d, f)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			hits = append(hits, i)
		}
	}
	return coll, hits, nil
}

func (c *Collection) CountDocuments(_ context.Context, filter any) (int64, error) {
	if err := c.db.client.check(OpCount); err != nil {
		return 0, err
	}
	s := c.srv()
	s.mu.Lock()
	defer s.mu.Unlock()
	_, hits, err := c.matching(filter)
	return int64(len(hits)), err
}

func (c *Collection) Find(_ context.Context, filter any, opts store.FindOptions) (store.Cursor, error) {
	if err := c.db.client.check(OpFind); err != nil {
		return nil, err
	}
	s := c.srv()
	s.mu.Lock()
	coll, hits, err := c.matching(filter)
	var docs []bson.D
	if err == nil {
		for _, i := range hits {
			docs = append(docs, coll.docs[i])
		}
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if len(opts.Sort) > 0 {
		sort.SliceStable(docs, func(i, j int) bool { return less(docs[i], docs[j], opts.Sort) })
	}
	if opts.Limit > 0 && int64(len(docs)) > opts.Limit {
		docs = docs[:opts.Limit]
	}
	out := make([]any, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	cur, err := mongo.NewCursorFromDocuments(out, nil, nil)
	if err != nil {
		return nil, err
	}
	return cur, nil
}

func (c *Collection) InsertOne(ctx context.Context, doc any) error {
	return c.InsertMany(ctx, []any{doc})
}

// InsertMany is ordered: documents before the first failure stay inserted.
func (c *Collection) InsertMany(_ context.Context, docs []any) error {
	if err := c.db.client.check(OpInsert); err != nil {
		return err
	}
	s := c.srv()
	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.collLocked(c.db.name, c.name)
	for _, v := range docs {
		d, err := toDoc(v)
		if err != nil {
			return err
		}
		if _, ok := get(d, model.FieldID); !ok {
			d = append(bson.D{{Key: model.FieldID, Value: primitive.NewObjectID()}}, d...)
		}
		if err := coll.checkUnique(d, -1); err != nil {
			return err
		}
		coll.docs = append(coll.docs, d)
		coll.evict()
	}
	return nil
}

// evict drops the oldest documents of a capped collection until both the
// document and the size limits hold. The newest document is always kept.
func (c *collection) evict() {
	if !c.opts.Capped {
		return
	}
	for len(c.docs) > 1 {
		overCount := c.opts.MaxDocuments > 0 && int64(len(c.docs)) > c.opts.MaxDocuments
		overSize := c.opts.MaxSizeBytes > 0 && c.size() > c.opts.MaxSizeBytes
		if !overCount && !overSize {
			return
		}
		c.docs = c.docs[1:]
	}
}

// size is the encoded size of the stored documents.
func (c *collection) size() int64 {
	var n int64
	for _, d := range c.docs {
		b, err := bson.Marshal(d)
		if err != nil {
			continue
		}
		n += int64(len(b))
	}
	return n
}

func (c *Collection) FindOneAndReplace(_ context.Context, filter, replacement, out any) error {
	if err := c.db.client.check(OpReplace); err != nil {
		return err
	}
	s := c.srv()
	s.mu.Lock()
	coll, hits, err := c.matching(filter)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if len(hits) == 0 {
		s.mu.Unlock()
		return store.ErrNoDocuments
	}
	at := hits[0]
	repl, err := toDoc(replacement)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	id, _ := get(coll.docs[at], model.FieldID)
	repl, err = withID(repl, id)
	if err == nil {
		err = coll.checkUnique(repl, at)
	}
	if err != nil {
		s.mu.Unlock()
		return err
	}
	coll.docs[at] = repl
	s.mu.Unlock()

	raw, err := bson.Marshal(repl)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, out)
}

func (c *Collection) DeleteOne(_ context.Context, filter any) (int64, error) {
	return c.delete(filter, 1)
}

func (c *Collection) DeleteMany(_ context.Context, filter any) (int64, error) {
	return c.delete(filter, -1)
}

func (c *Collection) delete(filter any, limit int) (int64, error) {
	if err := c.db.client.check(OpDelete); err != nil {
		return 0, err
	}
	s := c.srv()
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, hits, err := c.matching(filter)
	if err != nil || len(hits) == 0 {
		return 0, err
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	drop := make(map[int]struct{}, len(hits))
	for _, i := range hits {
		drop[i] = struct{}{}
	}
	kept := coll.docs[:0:0]
	for i, d := range coll.docs {
		if _, ok := drop[i]; !ok {
			kept = append(kept, d)
		}
	}
	coll.docs = kept
	return int64(len(hits)), nil
}

func (c *Collection) CreateIndex(_ context.Context, ix model.Index) (string, error) {
	if err := c.db.client.check(OpCreateIndex); err != nil {
		return "", err
	}
	if len(ix.Keys) == 0 {
		return "", errors.New("index has no keys")
	}
	name := ix.Name
	if name == "" {
		name = defaultIndexName(ix)
		ix.Name = name
	}
	s := c.srv()
	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.collLocked(c.db.name, c.name)
	for _, existing := range coll.indexes {
		if existing.Name == name {
			return name, nil
		}
	}
	coll.indexes = append(coll.indexes, ix)
	return name, nil
}

// defaultIndexName mirrors the server's "field_1_other_-1" naming.
func defaultIndexName(ix model.Index) string {
	name := ""
	for i, e := range ix.KeysDocument() {
		if i > 0 {
			name += "_"
		}
		name += fmt.Sprintf("%s_%v", e.Key, e.Value)
	}
	return name
}

func withID(d bson.D, id any) (bson.D, error) {
	if cur, ok := get(d, model.FieldID); ok {
		if !equal(cur, id) {
			return nil, errors.New("replacement would change _id")
		}
		return d, nil
	}
	return append(bson.D{{Key: model.FieldID, Value: id}}, d...), nil
}

// checkUnique rejects d when another document (skip excluded) shares its
// _id or the key tuple of a unique index.
func (c *collection) checkUnique(d bson.D, skip int) error {
	id, _ := get(d, model.FieldID)
	for i, other := range c.docs {
		if i == skip {
			continue
		}
		if oid, _ := get(other, model.FieldID); equal(oid, id) {
			return fmt.Errorf("%w: _id %v", ErrDuplicateKey, id)
		}
		for _, ix := range c.indexes {
			if ix.Unique && sameKeys(d, other, ix) {
				return fmt.Errorf("%w: index %s", ErrDuplicateKey, ix.Name)
			}
		}
	}
	return nil
}

func sameKeys(a, b bson.D, ix model.Index) bool {
	for _, k := range ix.Keys {
		av, _ := lookup(a, k.Field)
		bv, _ := lookup(b, k.Field)
		if !equal(av, bv) {
			return false
		}
	}
	return true
}
