//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memoria-ai/memoria/internal/api/handlers"
	"github.com/memoria-ai/memoria/internal/chunker"
	"github.com/memoria-ai/memoria/internal/condense"
	"github.com/memoria-ai/memoria/internal/fusion"
	"github.com/memoria-ai/memoria/internal/host"
	"github.com/memoria-ai/memoria/internal/ingest"
	"github.com/memoria-ai/memoria/internal/query"
	"github.com/memoria-ai/memoria/internal/registry"
	"github.com/memoria-ai/memoria/internal/repository"
	"github.com/memoria-ai/memoria/internal/scheduler"
	"github.com/memoria-ai/memoria/internal/server"
	"github.com/memoria-ai/memoria/internal/testutil"
)

// ServiceToken is the bearer token the test server accepts.
const ServiceToken = "e2e-service-token"

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	Host         *ScriptedHost
	Registry     *registry.Service
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment with a database container
// and a running HTTP server wired end to end. The embedder is deterministic
// so retrieval is reproducible without an external model.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	scripted := NewScriptedHost()
	serverURL, serverCloser, reg := startServer(t, pool, scripted, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		Pool:         pool,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		Host:         scripted,
		Registry:     reg,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, authToken string) (*APIResponse, error) {
	return e.doRequest("GET", path, nil, authToken)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}, authToken string) (*APIResponse, error) {
	return e.doRequest("POST", path, body, authToken)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path string, body interface{}, authToken string) (*APIResponse, error) {
	return e.doRequest("DELETE", path, body, authToken)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, authToken string) (*APIResponse, error) {
	url := e.ServerURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}

	return &apiResp, nil
}

// startServer wires the full stack against the test database and starts the
// HTTP server on the given port.
func startServer(t *testing.T, pool *pgxpool.Pool, provider host.MessageProvider, port int) (string, func(), *registry.Service) {
	ctx := context.Background()

	settingsRepo := repository.NewSettingsRepository(pool)
	checkpointRepo := repository.NewCheckpointRepository(pool)
	condensationRepo := repository.NewCondensationRepository(pool)
	retrievalLogRepo := repository.NewRetrievalLogRepository(pool)
	store := repository.NewPgVectorStore(pool)

	embedder := &BagOfWordsEmbedder{}

	reg, err := registry.NewService(ctx, settingsRepo, store)
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}

	ingestor := ingest.New(ingest.Config{
		Registry:    reg,
		Store:       store,
		Embedder:    embedder,
		Checkpoints: checkpointRepo,
		ChunkOpts:   chunker.Options{ChunkSize: 200, Overlap: 20},
		BatchSize:   5,
	})
	jobManager := ingest.NewManager(ingestor)

	queries := query.New(reg, store, embedder)
	scorer := fusion.New(nil, fusion.Config{
		Alpha:          0.7,
		TopN:           20,
		LorebookWeight: 1.2,
		ManualWeight:   1.1,
	})
	sched := scheduler.New(reg, queries, scorer, nil)

	sessions := condense.NewSessionLock()
	runner := condense.New(provider, ingestor, condensationRepo, sessions, condense.Config{
		Enabled:        true,
		BucketSize:     100,
		PreserveFloors: 20,
	})

	routerCfg := server.RouterConfig{
		ServiceToken:    ServiceToken,
		BasesHandler:    handlers.NewBasesHandler(reg),
		IngestHandler:   handlers.NewIngestHandler(ingestor, jobManager, checkpointRepo, sessions),
		QueryHandler:    handlers.NewQueryHandler(sched, sessions, retrievalLogRepo),
		CondenseHandler: handlers.NewCondenseHandler(runner, condensationRepo, sessions),
		LogsHandler:     handlers.NewLogsHandler(retrievalLogRepo),
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, reg
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// BagOfWordsEmbedder maps each word onto a hashed axis of the embedding
// space. Texts sharing words land close in cosine distance, which is enough
// signal for end-to-end retrieval assertions.
type BagOfWordsEmbedder struct{}

func (e *BagOfWordsEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, 1536)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			h.Write([]byte(word))
			v[h.Sum32()%1536]++
		}
		var norm float64
		for _, x := range v {
			norm += float64(x) * float64(x)
		}
		if norm > 0 {
			scale := float32(1 / math.Sqrt(norm))
			for j := range v {
				v[j] *= scale
			}
		} else {
			v[0] = 1
		}
		out[i] = v
	}
	return out, nil
}

// ScriptedHost serves canned conversations to the condensation runner.
type ScriptedHost struct {
	mu         sync.Mutex
	messages   map[string][]host.Message
	characters map[string]string
}

func NewScriptedHost() *ScriptedHost {
	return &ScriptedHost{
		messages:   make(map[string][]host.Message),
		characters: make(map[string]string),
	}
}

// SetChat registers a conversation with n messages on 1-based floors.
func (s *ScriptedHost) SetChat(chatID, character string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := make([]host.Message, 0, n)
	for i := 1; i <= n; i++ {
		msgs = append(msgs, host.Message{
			Floor:    i,
			FromUser: i%2 == 1,
			Text:     fmt.Sprintf("floor %d of %s adventure", i, character),
		})
	}
	s.messages[chatID] = msgs
	s.characters[chatID] = character
}

func (s *ScriptedHost) Messages(ctx context.Context, chatID string) ([]host.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs, ok := s.messages[chatID]
	if !ok {
		return nil, fmt.Errorf("unknown chat %s", chatID)
	}
	return msgs, nil
}

func (s *ScriptedHost) CharacterID(ctx context.Context, chatID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	character, ok := s.characters[chatID]
	if !ok {
		return "", fmt.Errorf("unknown chat %s", chatID)
	}
	return character, nil
}
