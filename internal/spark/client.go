// Package spark is a minimal client for the Cisco Spark (Webex) REST API:
// just enough to identify the bot, keep exactly one message webhook
// registered, and exchange direct messages.
package spark

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Message is a chat message as returned by the messages resource. Webhook
// posts embed a message stub without text; GetMessage loads the full one.
type Message struct {
	ID          string `json:"id"`
	PersonID    string `json:"personId"`
	PersonEmail string `json:"personEmail"`
	RoomID      string `json:"roomId"`
	RoomType    string `json:"roomType"`
	Text        string `json:"text"`
	Created     string `json:"created,omitempty"`
}

// WebhookPost is the request body Spark sends to a registered webhook.
type WebhookPost struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	ActorID   string  `json:"actorId"`
	CreatedBy string  `json:"createdBy"`
	Resource  string  `json:"resource"`
	Event     string  `json:"event"`
	Data      Message `json:"data"`
}

type personDetails struct {
	ID          string   `json:"id"`
	Emails      []string `json:"emails"`
	DisplayName string   `json:"displayName"`
}

type webhook struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	TargetURL string `json:"targetUrl"`
	Resource  string `json:"resource"`
	Event     string `json:"event"`
}

type webhookList struct {
	Items []webhook `json:"items"`
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client

	// BotID is the bot's own person id, resolved during NewClient. Used to
	// ignore the bot's own messages.
	BotID string
}

// NewClient builds a client and resolves the bot identity.
func NewClient(baseURL, token string) (*Client, error) {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}

	var me personDetails
	if err := c.do(http.MethodGet, "/people/me", nil, &me); err != nil {
		return nil, fmt.Errorf("resolve bot identity: %w", err)
	}
	c.BotID = me.ID
	return c, nil
}

// Post sends a markdown direct message to a person.
func (c *Client) Post(personID, markdown string) error {
	body := map[string]string{
		"toPersonId": personID,
		"markdown":   markdown,
	}
	return c.do(http.MethodPost, "/messages", body, nil)
}

// GetMessage loads a message, including its text.
func (c *Client) GetMessage(id string) (Message, error) {
	var msg Message
	err := c.do(http.MethodGet, "/messages/"+id, nil, &msg)
	return msg, err
}

// ReplaceWebhook removes every registered messages/created webhook and
// registers targetURL as the only one.
func (c *Client) ReplaceWebhook(targetURL string) error {
	var existing webhookList
	if err := c.do(http.MethodGet, "/webhooks", nil, &existing); err != nil {
		return fmt.Errorf("list webhooks: %w", err)
	}

	for _, hook := range existing.Items {
		if hook.Resource != "messages" || hook.Event != "created" {
			continue
		}
		if err := c.do(http.MethodDelete, "/webhooks/"+hook.ID, nil, nil); err != nil {
			return fmt.Errorf("delete webhook %s: %w", hook.ID, err)
		}
		log.Printf("removed stale spark webhook: %s", hook.TargetURL)
	}

	body := map[string]string{
		"name":      "gerritbot",
		"targetUrl": targetURL,
		"resource":  "messages",
		"event":     "created",
	}
	if err := c.do(http.MethodPost, "/webhooks", body, nil); err != nil {
		return fmt.Errorf("register webhook: %w", err)
	}
	return nil
}

func (c *Client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: unexpected status %s", method, path, resp.Status)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
