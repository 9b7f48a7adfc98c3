package tasksource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/biamino/team-report-bot/types"
)

// Client pulls the current task list from the external task system.
// The endpoint returns a JSON array of task records; everything beyond
// that shape is the remote side's business.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type taskRecord struct {
	ID          string     `json:"task_id"`
	EmployeeID  string     `json:"employee_id"`
	Description string     `json:"description"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}

func (c *Client) FetchTasks(ctx context.Context) ([]types.Task, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tasks", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("task source request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("task source returned %s", resp.Status)
	}

	var records []taskRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("task source decode: %w", err)
	}

	tasks := make([]types.Task, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" || rec.EmployeeID == "" {
			continue
		}
		tasks = append(tasks, types.Task{
			ID:          rec.ID,
			EmployeeID:  rec.EmployeeID,
			Description: rec.Description,
			Deadline:    rec.Deadline,
		})
	}
	return tasks, nil
}
