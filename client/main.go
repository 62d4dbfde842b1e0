// Command client is an interactive terminal client for driftroom: it
// creates or joins a room, subscribes to live events over the gateway, and
// posts typed lines through the API.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"github.com/driftroom/driftroom/pkg/model"
)

func createRoom(apiAddr string) (string, error) {
	resp, err := http.Post(apiAddr+"/room/create", "application/json", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("create room failed: %s", string(body))
	}

	var out struct {
		RoomID string `json:"roomId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.RoomID, nil
}

func joinRoom(apiAddr, roomID string) (string, error) {
	resp, err := http.Post(apiAddr+"/room/join?roomId="+url.QueryEscape(roomID), "application/json", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("join failed: %s", string(body))
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func postMessage(apiAddr, roomID, cred, sender, text string) error {
	body, _ := json.Marshal(map[string]string{"sender": sender, "text": text})
	req, err := http.NewRequest(http.MethodPost, apiAddr+"/messages?roomId="+url.QueryEscape(roomID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("post failed: %s", string(respBody))
	}
	return nil
}

func destroyRoom(apiAddr, roomID, cred string) error {
	req, err := http.NewRequest(http.MethodPost, apiAddr+"/room/destroy?roomId="+url.QueryEscape(roomID), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cred)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("destroy failed: %s", string(respBody))
	}
	return nil
}

func main() {
	gatewayAddr := flag.String("gateway", "localhost:8080", "gateway service address")
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	roomID := flag.String("room", "", "room id to join (empty: create a new room)")
	sender := flag.String("name", "anon", "display name")
	flag.Parse()

	// 1. Create or reuse a room.
	room := *roomID
	if room == "" {
		var err error
		room, err = createRoom(*apiAddr)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Created room %s (share this id, it self-destructs)", room)
	}

	// 2. Join for a credential.
	cred, err := joinRoom(*apiAddr, room)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("Joined room %s", room)

	// 3. Subscribe to live events.
	u := url.URL{Scheme: "ws", Host: *gatewayAddr, Path: "/ws"}
	q := u.Query()
	q.Set("roomId", room)
	q.Set("name", *sender)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Add("Authorization", "Bearer "+cred)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			_, payload, err := c.ReadMessage()
			if err != nil {
				log.Println("read:", err)
				return
			}

			var event model.Event
			if err := json.Unmarshal(payload, &event); err != nil {
				log.Printf("Received raw: %s", payload)
				continue
			}
			fmt.Printf("\r%s: %s\n> ", event.Message.Sender, event.Message.Text)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	// 4. Read from stdin and post through the API.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			text := scanner.Text()
			if text == "" {
				fmt.Print("> ")
				continue
			}

			if text == "/quit" {
				close(interrupt)
				break
			}

			if text == "/destroy" {
				if err := destroyRoom(*apiAddr, room, cred); err != nil {
					log.Println(err)
				} else {
					log.Println("Room destroyed")
					close(interrupt)
					break
				}
				fmt.Print("> ")
				continue
			}

			if err := postMessage(*apiAddr, room, cred, *sender, text); err != nil {
				log.Println(err)
			}
			fmt.Print("> ")
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("write close:", err)
				return
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
