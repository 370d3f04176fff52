package graph

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	driver "github.com/arangodb/go-driver"
	arangohttp "github.com/arangodb/go-driver/http"
	"github.com/hashicorp/go-hclog"
)

// Client wraps an ArangoDB database with the typed operations the
// service needs: vertex get/has/insert, keyed edge upserts, traversals
// and ad-hoc AQL. All methods are safe for concurrent use; the driver
// connection is a pool.
type Client struct {
	db     driver.Database
	logger hclog.Logger

	// Guards lazy creation of edge collections.
	mu    sync.Mutex
	known map[string]bool
}

// Config holds the connection settings for the graph store.
type Config struct {
	HostURL  string
	Password string
	Database string
	Logger   hclog.Logger
}

// New connects to ArangoDB, creating the database if it does not exist.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.HostURL == "" {
		return nil, fmt.Errorf("graph host URL is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	conn, err := arangohttp.NewConnection(arangohttp.ConnectionConfig{
		Endpoints: []string{cfg.HostURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create arango connection: %w", err)
	}

	client, err := driver.NewClient(driver.ClientConfig{
		Connection:     conn,
		Authentication: driver.BasicAuthentication("root", cfg.Password),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create arango client: %w", err)
	}

	exists, err := client.DatabaseExists(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to check database %q: %w", cfg.Database, err)
	}
	var db driver.Database
	if exists {
		db, err = client.Database(ctx, cfg.Database)
	} else {
		db, err = client.CreateDatabase(ctx, cfg.Database, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database %q: %w", cfg.Database, err)
	}

	return &Client{
		db:     db,
		logger: cfg.Logger.Named("graph"),
		known:  make(map[string]bool),
	}, nil
}

// Query runs an AQL query and decodes every row into out, which must be
// a pointer to a slice.
func (c *Client) Query(ctx context.Context, aql string, bindVars map[string]any, out any) error {
	cursor, err := c.db.Query(ctx, aql, bindVars)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	defer cursor.Close()

	slice := reflect.ValueOf(out).Elem()
	elemType := slice.Type().Elem()
	for {
		row := reflect.New(elemType)
		_, err := cursor.ReadDocument(ctx, row.Interface())
		if driver.IsNoMoreDocuments(err) {
			break
		}
		if err != nil {
			return fmt.Errorf("cursor read failed: %w", err)
		}
		slice.Set(reflect.Append(slice, row.Elem()))
	}
	return nil
}

// QueryOne runs an AQL query expected to yield at most one row. Returns
// false when the query matched nothing.
func (c *Client) QueryOne(ctx context.Context, aql string, bindVars map[string]any, out any) (bool, error) {
	cursor, err := c.db.Query(ctx, aql, bindVars)
	if err != nil {
		return false, fmt.Errorf("query failed: %w", err)
	}
	defer cursor.Close()

	_, err = cursor.ReadDocument(ctx, out)
	if driver.IsNoMoreDocuments(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cursor read failed: %w", err)
	}
	return true, nil
}

// Execute runs an AQL statement and discards any result rows.
func (c *Client) Execute(ctx context.Context, aql string, bindVars map[string]any) error {
	cursor, err := c.db.Query(ctx, aql, bindVars)
	if err != nil {
		return fmt.Errorf("statement failed: %w", err)
	}
	return cursor.Close()
}

// VertexExists reports whether a vertex with the given key exists.
func (c *Client) VertexExists(ctx context.Context, collection, key string) (bool, error) {
	col, err := c.collection(ctx, collection, false)
	if err != nil {
		return false, err
	}
	exists, err := col.DocumentExists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("existence check in %s failed: %w", collection, err)
	}
	return exists, nil
}

// ReadVertex loads a vertex by key. Returns false when absent.
func (c *Client) ReadVertex(ctx context.Context, collection, key string, out any) (bool, error) {
	col, err := c.collection(ctx, collection, false)
	if err != nil {
		return false, err
	}
	_, err = col.ReadDocument(ctx, key, out)
	if driver.IsNotFoundGeneral(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read from %s failed: %w", collection, err)
	}
	return true, nil
}

// InsertVertex writes a vertex. With overwrite set, an existing vertex
// with the same key is replaced wholesale (the replay-idempotence mode
// the ingestion pipeline relies on).
func (c *Client) InsertVertex(ctx context.Context, collection string, doc any, overwrite bool) error {
	col, err := c.collection(ctx, collection, false)
	if err != nil {
		return err
	}
	insertCtx := ctx
	if overwrite {
		insertCtx = driver.WithOverwrite(ctx)
	}
	if _, err := col.CreateDocument(insertCtx, doc); err != nil {
		return fmt.Errorf("insert into %s failed: %w", collection, err)
	}
	return nil
}

// Traverse walks edges from startID and returns vertices in traversal
// order: [start, parent, grandparent, ...] for OUTBOUND hierarchies.
func (c *Client) Traverse(ctx context.Context, startID string, depthMin, depthMax int, direction string, edgeCollections []string) ([]map[string]any, error) {
	if direction != "OUTBOUND" && direction != "INBOUND" && direction != "ANY" {
		return nil, fmt.Errorf("invalid traversal direction %q", direction)
	}
	edges := ""
	for i, e := range edgeCollections {
		if !edgeNameOK(e) {
			return nil, fmt.Errorf("invalid edge collection %q", e)
		}
		if i > 0 {
			edges += ", "
		}
		edges += e
	}
	aql := fmt.Sprintf(
		"FOR v IN %d..%d %s DOCUMENT(@start) %s RETURN v",
		depthMin, depthMax, direction, edges,
	)
	var out []map[string]any
	if err := c.Query(ctx, aql, map[string]any{"start": startID}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) collection(ctx context.Context, name string, edge bool) (driver.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.known[name] {
		exists, err := c.db.CollectionExists(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to check collection %q: %w", name, err)
		}
		if !exists {
			opts := &driver.CreateCollectionOptions{}
			if edge {
				opts.Type = driver.CollectionTypeEdge
			}
			if _, err := c.db.CreateCollection(ctx, name, opts); err != nil {
				return nil, fmt.Errorf("failed to create collection %q: %w", name, err)
			}
			c.logger.Info("created collection", "name", name, "edge", edge)
		}
		c.known[name] = true
	}

	col, err := c.db.Collection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %q: %w", name, err)
	}
	return col, nil
}

func edgeNameOK(name string) bool {
	for _, r := range name {
		if r >= 'a' && r <= 'z' || r == '_' {
			continue
		}
		return false
	}
	return name != ""
}
