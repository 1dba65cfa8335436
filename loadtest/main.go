package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	baseURL   = flag.String("base", "http://localhost:8080", "HTTP base URL")
	wsURL     = flag.String("ws", "ws://localhost:8080/ws", "websocket URL")
	pairCount = flag.Int("pairs", 50, "user pairs to simulate")
	msgCount  = flag.Int("messages", 20, "messages per user")
)

type authResponse struct {
	Token string `json:"token"`
	User  struct {
		ID       string `json:"id"`
		Email    string `json:"email"`
		Username string `json:"username"`
	} `json:"user"`
}

type workspaceResponse struct {
	Workspace struct {
		ID string `json:"id"`
	} `json:"workspace"`
}

type channelsResponse struct {
	Channels []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"channels"`
}

func main() {
	flag.Parse()
	log.Printf("starting load test: %d pairs, %d messages each", *pairCount, *msgCount)

	var wg sync.WaitGroup
	for i := 0; i < *pairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}
	wg.Wait()

	log.Println("load test complete")
}

// runPair drives two users sharing one workspace: A creates it, invites
// B, then both spam the general channel over websocket.
func runPair(pairID int) {
	suffix := fmt.Sprintf("%d_%d", time.Now().UnixMilli(), pairID)
	a := authenticate("lt_a_"+suffix, fmt.Sprintf("lt_a_%s@load.test", suffix))
	b := authenticate("lt_b_"+suffix, fmt.Sprintf("lt_b_%s@load.test", suffix))
	if a == nil || b == nil {
		return
	}

	workspaceID := createWorkspace(a.Token, "Load "+suffix, "load-"+suffix)
	if workspaceID == "" {
		return
	}
	if !invite(a.Token, workspaceID, b.User.Email) {
		return
	}

	channelID := generalChannel(a.Token, workspaceID)
	if channelID == "" {
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go spamChannel(&wsWg, a.Token, channelID, a.User.Username)
	go spamChannel(&wsWg, b.Token, channelID, b.User.Username)
	wsWg.Wait()
}

func authenticate(username, email string) *authResponse {
	password := "loadtest-password-1"

	resp, err := postJSON("", "/auth/register", map[string]string{
		"email":    email,
		"username": username,
		"password": password,
	})
	if err != nil {
		log.Printf("register failed [%s]: %v", username, err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		log.Printf("register failed [%s]: status %d", username, resp.StatusCode)
		return nil
	}

	var data authResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil
	}
	return &data
}

func createWorkspace(token, name, slug string) string {
	resp, err := postJSON(token, "/workspaces", map[string]string{
		"name": name,
		"slug": slug,
	})
	if err != nil || resp.StatusCode != http.StatusCreated {
		log.Printf("create workspace failed: %v", err)
		return ""
	}
	defer resp.Body.Close()

	var data workspaceResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.Workspace.ID
}

func invite(token, workspaceID, email string) bool {
	resp, err := postJSON(token, "/workspaces/"+workspaceID+"/invite", map[string]string{
		"userEmail": email,
	})
	if err != nil {
		log.Printf("invite failed: %v", err)
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusCreated
}

func generalChannel(token, workspaceID string) string {
	req, _ := http.NewRequest("GET", *baseURL+"/channels/workspace/"+workspaceID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	var data channelsResponse
	json.NewDecoder(resp.Body).Decode(&data)
	for _, ch := range data.Channels {
		if ch.Name == "general" {
			return ch.ID
		}
	}
	return ""
}

func spamChannel(wg *sync.WaitGroup, token, channelID, username string) {
	defer wg.Done()

	conn, _, err := websocket.DefaultDialer.Dial(*wsURL+"?token="+token, nil)
	if err != nil {
		log.Printf("ws connect failed [%s]: %v", username, err)
		return
	}
	defer conn.Close()

	// Drain server frames so the read buffer never backs up.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for i := 0; i < *msgCount; i++ {
		frame := map[string]interface{}{
			"event": "message:send",
			"data": map[string]string{
				"channelId": channelID,
				"content":   fmt.Sprintf("load test message %d from %s", i, username),
			},
		}
		if err := conn.WriteJSON(frame); err != nil {
			log.Printf("send failed [%s]: %v", username, err)
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	log.Printf("%s finished sending %d messages", username, *msgCount)
}

func postJSON(token, endpoint string, data interface{}) (*http.Response, error) {
	body, _ := json.Marshal(data)
	req, err := http.NewRequest("POST", *baseURL+endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return http.DefaultClient.Do(req)
}
