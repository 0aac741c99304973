package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"pomcp/communication"
	"pomcp/pomdp"
)

var ErrRemote = errors.New("remote environment")

// Client is a searcher.Environment backed by a communication server.
type Client struct {
	serverURL string
	http      *http.Client
	episode   string
}

func New(serverURL string) *Client {
	return &Client{
		serverURL: serverURL,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Episode() string { return c.episode }

// Reset starts a new episode on the server.
func (c *Client) Reset(ctx context.Context) error {
	var resp communication.EpisodeResponse
	if err := c.post(ctx, "/episodes", struct{}{}, http.StatusCreated, &resp); err != nil {
		return err
	}
	c.episode = resp.Episode
	return nil
}

func (c *Client) Step(a pomdp.Action) (float64, pomdp.Observation, bool, error) {
	if c.episode == "" {
		return 0, 0, false, fmt.Errorf("%w: no episode started", ErrRemote)
	}
	var resp communication.StepResponse
	req := communication.StepRequest{Episode: c.episode, Action: int(a)}
	if err := c.post(context.Background(), "/step", req, http.StatusOK, &resp); err != nil {
		return 0, 0, false, err
	}
	return resp.Reward, pomdp.Observation(resp.Observation), resp.Done, nil
}

func (c *Client) post(ctx context.Context, path string, body any, want int, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemote, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var e communication.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%w: %s returned status %d: %s", ErrRemote, path, resp.StatusCode, e.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %w", ErrRemote, path, err)
	}
	return nil
}
