// Smoke check against a running API: exercises the whole room lifecycle
// (create, join with two credentials, post, list with redaction, destroy)
// and prints what it finds.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
)

type message struct {
	ID     string `json:"id"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
	Token  string `json:"token,omitempty"`
}

func post(path, cred string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(http.MethodPost, path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if cred != "" {
		req.Header.Set("Authorization", "Bearer "+cred)
	}
	return http.DefaultClient.Do(req)
}

func decode(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func main() {
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	flag.Parse()

	// Create.
	var created struct {
		RoomID string `json:"roomId"`
	}
	resp, err := post(*apiAddr+"/room/create", "", nil)
	if err != nil {
		log.Fatal(err)
	}
	if err := decode(resp, &created); err != nil {
		log.Fatal("create: ", err)
	}
	fmt.Println("created room:", created.RoomID)

	// Two participants join.
	join := func() string {
		var out struct {
			Token string `json:"token"`
		}
		resp, err := post(*apiAddr+"/room/join?roomId="+url.QueryEscape(created.RoomID), "", nil)
		if err != nil {
			log.Fatal(err)
		}
		if err := decode(resp, &out); err != nil {
			log.Fatal("join: ", err)
		}
		return out.Token
	}
	credA, credB := join(), join()
	fmt.Println("joined twice")

	// Alice posts.
	resp, err = post(*apiAddr+"/messages?roomId="+url.QueryEscape(created.RoomID), credA,
		map[string]string{"sender": "alice", "text": "hi"})
	if err != nil {
		log.Fatal(err)
	}
	if err := decode(resp, nil); err != nil {
		log.Fatal("post: ", err)
	}
	fmt.Println("posted as alice")

	// List as both and compare redaction.
	list := func(cred string) []message {
		req, _ := http.NewRequest(http.MethodGet, *apiAddr+"/messages?roomId="+url.QueryEscape(created.RoomID), nil)
		req.Header.Set("Authorization", "Bearer "+cred)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			log.Fatal(err)
		}
		var out struct {
			Messages []message `json:"messages"`
		}
		if err := decode(resp, &out); err != nil {
			log.Fatal("list: ", err)
		}
		return out.Messages
	}

	asAlice := list(credA)
	asBob := list(credB)
	if len(asAlice) != 1 || len(asBob) != 1 {
		log.Fatalf("expected 1 message for both readers, got %d and %d", len(asAlice), len(asBob))
	}
	if asAlice[0].Token == "" {
		log.Fatal("alice should see her own token")
	}
	if asBob[0].Token != "" {
		log.Fatal("bob must not see alice's token")
	}
	fmt.Println("redaction ok")

	// Destroy and confirm the cascade.
	resp, err = post(*apiAddr+"/room/destroy?roomId="+url.QueryEscape(created.RoomID), credA, nil)
	if err != nil {
		log.Fatal(err)
	}
	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		log.Fatalf("destroy: status %d: %s", resp.StatusCode, body)
	}
	resp.Body.Close()

	if got := list(credA); len(got) != 0 {
		log.Fatalf("destroyed room should list empty, got %d messages", len(got))
	}

	resp, err = post(*apiAddr+"/messages?roomId="+url.QueryEscape(created.RoomID), credA,
		map[string]string{"sender": "alice", "text": "after destroy"})
	if err != nil {
		log.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusGone {
		log.Fatalf("post after destroy: expected 404/410, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	fmt.Println("destroy cascade ok")
	fmt.Println("all checks passed")
}
