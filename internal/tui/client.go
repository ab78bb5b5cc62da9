package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/fentz26/bioreactor/internal/models"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// PlanClientTimeout bounds plan executions, which block for their waits.
const PlanClientTimeout = 10 * time.Minute

// Client wraps HTTP calls to the bioreactor API
type Client struct {
	baseURL    string
	httpClient *http.Client
	planClient *http.Client
}

// NewClient creates a new API client with timeout
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultClientTimeout},
		planClient: &http.Client{Timeout: PlanClientTimeout},
	}
}

// Status fetches PV/SP for every parameter, sorted by name.
func (c *Client) Status() ([]ParameterRow, error) {
	var status map[string]models.ParameterStatus
	if err := c.get("/status", &status); err != nil {
		return nil, err
	}

	rows := make([]ParameterRow, 0, len(status))
	for name, st := range status {
		rows = append(rows, ParameterRow{Name: name, PV: st.PV, SP: st.SP})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows, nil
}

// Read fetches the PVs of names.
func (c *Client) Read(names []string) (map[string]float64, error) {
	body, err := c.post(c.httpClient, "/read_multi_real", map[string][]string{"parameters": names})
	if err != nil {
		return nil, err
	}
	var readings map[string]float64
	if err := json.Unmarshal(body, &readings); err != nil {
		return nil, err
	}
	return readings, nil
}

// Write sets setpoints and returns per-entry outcomes.
func (c *Client) Write(values map[string]float64) (map[string]string, error) {
	body, err := c.post(c.httpClient, "/write_multi_real", map[string]map[string]float64{"values": values})
	if err != nil {
		return nil, err
	}
	var outcomes map[string]string
	if err := json.Unmarshal(body, &outcomes); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// GeneratePlan asks the daemon for a plan.
func (c *Client) GeneratePlan(prompt string) (*models.PlanSpec, error) {
	body, err := c.post(c.httpClient, "/llm/plan", map[string]string{"prompt": prompt})
	if err != nil {
		return nil, err
	}
	var spec models.PlanSpec
	if err := json.Unmarshal(body, &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

// ExecutePlan runs spec. An aborted plan is not an error: the returned run
// has Completed false and the partial log.
func (c *Client) ExecutePlan(spec models.PlanSpec) (*PlanRun, error) {
	data, err := json.Marshal(spec)
	if err != nil {
		return nil, err
	}
	resp, err := c.planClient.Post(c.baseURL+"/execute_plan", "application/json", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var ok struct {
			Log         []models.LogEntry `json:"log"`
			ExecutionID string            `json:"execution_id"`
		}
		if err := json.Unmarshal(body, &ok); err != nil {
			return nil, err
		}
		return &PlanRun{ExecutionID: ok.ExecutionID, Completed: true, Log: ok.Log}, nil
	case http.StatusInternalServerError:
		var failed struct {
			Detail struct {
				Log []models.LogEntry `json:"log"`
			} `json:"detail"`
			ExecutionID string `json:"execution_id"`
		}
		if err := json.Unmarshal(body, &failed); err == nil && failed.Detail.Log != nil {
			return &PlanRun{ExecutionID: failed.ExecutionID, Log: failed.Detail.Log}, nil
		}
	}
	return nil, apiError(body)
}

// Trend fetches the recent PV history of name.
func (c *Client) Trend(name string) ([]float64, error) {
	var trend models.Trend
	if err := c.get("/trend?parameter="+url.QueryEscape(name), &trend); err != nil {
		return nil, err
	}
	return trend.Values, nil
}

// ControlLoops fetches the control loop status.
func (c *Client) ControlLoops() (*models.ControlLoops, error) {
	var loops models.ControlLoops
	if err := c.get("/control_loops", &loops); err != nil {
		return nil, err
	}
	return &loops, nil
}

// Executions fetches recent plan executions.
func (c *Client) Executions(limit int) ([]models.Execution, error) {
	var execs []models.Execution
	if err := c.get(fmt.Sprintf("/executions?limit=%d", limit), &execs); err != nil {
		return nil, err
	}
	return execs, nil
}

// Execution fetches one plan execution.
func (c *Client) Execution(id string) (*models.Execution, error) {
	var exec models.Execution
	if err := c.get("/executions/"+url.PathEscape(id), &exec); err != nil {
		return nil, err
	}
	return &exec, nil
}

// CheckHealth checks if the daemon is healthy
func (c *Client) CheckHealth() (bool, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, nil
	}

	var health struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false, err
	}

	return health.OK, nil
}

func (c *Client) get(path string, v interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return apiError(body)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) post(hc *http.Client, path string, data interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	resp, err := hc.Post(c.baseURL+path, "application/json", bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, apiError(body)
	}

	return body, nil
}

// apiError unwraps {"detail": "..."} bodies into their message.
func apiError(body []byte) error {
	var e struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(body, &e) == nil && len(e.Detail) > 0 {
		var msg string
		if json.Unmarshal(e.Detail, &msg) == nil {
			return fmt.Errorf("API error: %s", msg)
		}
		return fmt.Errorf("API error: %s", string(e.Detail))
	}
	return fmt.Errorf("API error: %s", string(bytes.TrimSpace(body)))
}
