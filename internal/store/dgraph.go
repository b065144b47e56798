package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/dgo/v230"
	"github.com/dgraph-io/dgo/v230/protos/api"
	"github.com/quantumflow/annealflow/internal/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// DgraphStore implements AgentStore on Dgraph. Each profile is an Agent node
// keyed by the upsert predicate agent.id.
type DgraphStore struct {
	client *dgo.Dgraph
	conn   *grpc.ClientConn
}

const dgraphSchema = `
	type Agent {
		agent.id
		agent.name
		agent.category
		agent.created
		agent.data
	}

	agent.id: string @index(exact) @upsert .
	agent.name: string @index(term) .
	agent.category: string @index(exact) .
	agent.created: datetime @index(hour) .
	agent.data: string .
`

// NewDgraphStore connects to a Dgraph alpha and installs the schema
func NewDgraphStore(cfg Config) (*DgraphStore, error) {
	conn, err := grpc.Dial(cfg.DgraphURL, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, storeErr(BackendDgraph, "open", fmt.Errorf("failed to connect to Dgraph: %w", err))
	}

	s := &DgraphStore{
		client: dgo.NewDgraphClient(api.NewDgraphClient(conn)),
		conn:   conn,
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.client.Alter(ctx, &api.Operation{Schema: dgraphSchema}); err != nil {
		conn.Close()
		return nil, storeErr(BackendDgraph, "open", fmt.Errorf("failed to initialize schema: %w", err))
	}
	return s, nil
}

type dgraphAgent struct {
	Data string `json:"agent.data"`
}

// LoadAll queries every Agent node
func (s *DgraphStore) LoadAll(ctx context.Context) ([]*models.AgentProfile, error) {
	q := `{
		agents(func: type(Agent)) {
			agent.data
		}
	}`

	txn := s.client.NewReadOnlyTxn()
	defer txn.Discard(ctx)

	resp, err := txn.Query(ctx, q)
	if err != nil {
		return nil, storeErr(BackendDgraph, "load", err)
	}

	var result struct {
		Agents []dgraphAgent `json:"agents"`
	}
	if err := json.Unmarshal(resp.Json, &result); err != nil {
		return nil, storeErr(BackendDgraph, "load", fmt.Errorf("failed to unmarshal response: %w", err))
	}

	profiles := make([]*models.AgentProfile, 0, len(result.Agents))
	for _, a := range result.Agents {
		profile, err := decodeProfile([]byte(a.Data))
		if err != nil {
			return nil, storeErr(BackendDgraph, "load", err)
		}
		profiles = append(profiles, profile)
	}

	sortByCreation(profiles)
	return profiles, nil
}

// SaveAll deletes every Agent node and writes profiles in one transaction
func (s *DgraphStore) SaveAll(ctx context.Context, profiles []*models.AgentProfile) error {
	txn := s.client.NewTxn()
	defer txn.Discard(ctx)

	clear := &api.Request{
		Query:     `{ all as var(func: type(Agent)) }`,
		Mutations: []*api.Mutation{{DelNquads: []byte(`uid(all) * * .`)}},
	}
	if _, err := txn.Do(ctx, clear); err != nil {
		return storeErr(BackendDgraph, "save all", err)
	}

	for _, p := range profiles {
		req, err := upsertRequest(p)
		if err != nil {
			return storeErr(BackendDgraph, "save all", err)
		}
		if _, err := txn.Do(ctx, req); err != nil {
			return storeErr(BackendDgraph, "save all", err)
		}
	}
	return storeErr(BackendDgraph, "save all", txn.Commit(ctx))
}

// Save upserts one profile
func (s *DgraphStore) Save(ctx context.Context, profile *models.AgentProfile) error {
	req, err := upsertRequest(profile)
	if err != nil {
		return storeErr(BackendDgraph, "save", err)
	}
	req.CommitNow = true

	txn := s.client.NewTxn()
	defer txn.Discard(ctx)

	_, err = txn.Do(ctx, req)
	return storeErr(BackendDgraph, "save", err)
}

func upsertRequest(profile *models.AgentProfile) (*api.Request, error) {
	data, err := encodeProfile(profile)
	if err != nil {
		return nil, err
	}

	node, err := json.Marshal(map[string]interface{}{
		"uid":            "uid(agent)",
		"agent.id":       profile.ID,
		"agent.name":     profile.Name,
		"agent.category": string(profile.Category),
		"agent.created":  profile.CreatedAt.Format(time.RFC3339),
		"agent.data":     string(data),
		"dgraph.type":    "Agent",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal agent node: %w", err)
	}

	return &api.Request{
		Query:     `query q($id: string) { agent as var(func: eq(agent.id, $id)) }`,
		Vars:      map[string]string{"$id": profile.ID},
		Mutations: []*api.Mutation{{SetJson: node}},
	}, nil
}

// Delete removes the node for id, if any
func (s *DgraphStore) Delete(ctx context.Context, id string) error {
	req := &api.Request{
		Query:     `query q($id: string) { agent as var(func: eq(agent.id, $id)) }`,
		Vars:      map[string]string{"$id": id},
		Mutations: []*api.Mutation{{DelNquads: []byte(`uid(agent) * * .`)}},
		CommitNow: true,
	}

	txn := s.client.NewTxn()
	defer txn.Discard(ctx)

	_, err := txn.Do(ctx, req)
	return storeErr(BackendDgraph, "delete", err)
}

// Close closes the gRPC connection
func (s *DgraphStore) Close() error {
	return s.conn.Close()
}
