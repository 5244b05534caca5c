package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	BaseURL  = "http://localhost:8080"
	WSURL    = "ws://localhost:8080/ws"
	Pairs    = 50 // 50 pairs = 100 users
	MsgCount = 20 // Messages per user
)

type AuthResponse struct {
	Token    string `json:"access_token"`
	ID       string `json:"id"`
	Username string `json:"username"`
}

func main() {
	log.Printf("🔥 STARTING STRESS TEST: %d Users, %d Messages each...", Pairs*2, MsgCount)
	var wg sync.WaitGroup

	// Pairs: User 0 talks to User 1, User 2 talks to User 3...
	for i := 0; i < Pairs; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Println("✅ LOAD TEST COMPLETE")
}

func runPair(pairID int) {
	userA := fmt.Sprintf("u_%d_a", pairID)
	userB := fmt.Sprintf("u_%d_b", pairID)
	pass := "password123"

	tokenA, _ := authenticate(userA, pass)
	tokenB, idB := authenticate(userB, pass)

	if tokenA == "" || tokenB == "" {
		return // Failed auth
	}

	// A opens the DM by sending the first message, then both sides spam it
	// over REST while holding a websocket open to receive the fan-out.
	channelID := sendDM(tokenA, idB, "hello")
	if channelID == "" {
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)

	go spamChannel(&wsWg, tokenA, channelID, userA)
	go spamChannel(&wsWg, tokenB, channelID, userB)

	wsWg.Wait()
}

// authenticate registers (ignores error if exists) and logs in
func authenticate(username, password string) (string, string) {
	postJSON("/register", map[string]string{"username": username, "name": username, "password": password})

	resp, err := postJSON("/login", map[string]string{"username": username, "password": password})
	if err != nil {
		log.Printf("❌ Login Failed [%s]: %v", username, err)
		return "", ""
	}
	defer resp.Body.Close()

	var data AuthResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.Token, data.ID
}

// sendDM posts the first direct message and returns the channel it landed in.
func sendDM(token, recipientID, text string) string {
	body, _ := json.Marshal(map[string]string{"text": text})
	req, _ := http.NewRequest("POST", fmt.Sprintf("%s/api/messages/dm/%s", BaseURL, recipientID), bytes.NewBuffer(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		log.Printf("❌ Open DM Failed: %v", err)
		return ""
	}
	defer resp.Body.Close()

	var data struct {
		Channel string `json:"channel"`
	}
	json.NewDecoder(resp.Body).Decode(&data)
	return data.Channel
}

func spamChannel(wg *sync.WaitGroup, token, channelID, user string) {
	defer wg.Done()

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s", WSURL, token), nil)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", user, err)
		return
	}
	defer conn.Close()

	// Drain incoming events so the server never parks on a full buffer.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for i := 0; i < MsgCount; i++ {
		body, _ := json.Marshal(map[string]string{
			"text": fmt.Sprintf("LoadTest Msg %d from %s", i, user),
		})
		req, _ := http.NewRequest("POST", fmt.Sprintf("%s/api/messages/%s", BaseURL, channelID), bytes.NewBuffer(body))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			log.Printf("❌ Send Fail [%s]: %v", user, err)
			break
		}
		resp.Body.Close()
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}
	log.Printf("✅ %s finished sending %d msgs", user, MsgCount)
}

func postJSON(endpoint string, data interface{}) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	return http.Post(BaseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}
