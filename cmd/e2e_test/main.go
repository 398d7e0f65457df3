package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

// Exercises a running server end to end: two users, a buy, a FIFO sell,
// the portfolio summary, and a guestbook visit. Run against a fresh dev
// database with the server listening on BASE_URL (default localhost:8080).

var baseURL = "http://localhost:8080"

type client struct {
	token string
}

func (c *client) do(method, path string, body any) (int, map[string]any, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, baseURL+path, rd)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return resp.StatusCode, nil, fmt.Errorf("bad response body %q: %w", raw, err)
		}
	}
	return resp.StatusCode, out, nil
}

func mustStatus(got, want int, step string) {
	if got != want {
		log.Fatalf("%s: got HTTP %d, want %d", step, got, want)
	}
}

func register(nick string) *client {
	c := &client{}
	code, _, err := c.do("POST", "/api/auth/register", map[string]any{"nickname": nick, "password": "hunter22"})
	if err != nil {
		log.Fatalf("register %s: %v", nick, err)
	}
	mustStatus(code, http.StatusCreated, "register "+nick)
	code, body, err := c.do("POST", "/api/auth/login", map[string]any{"nickname": nick, "password": "hunter22"})
	if err != nil {
		log.Fatalf("login %s: %v", nick, err)
	}
	mustStatus(code, http.StatusOK, "login "+nick)
	c.token, _ = body["token"].(string)
	if c.token == "" {
		log.Fatalf("login %s returned no token", nick)
	}
	return c
}

func main() {
	if v := os.Getenv("BASE_URL"); v != "" {
		baseURL = v
	}

	stamp := time.Now().Unix()
	owner := register(fmt.Sprintf("farmer-%d", stamp))
	visitor := register(fmt.Sprintf("visitor-%d", stamp))

	code, _, err := owner.do("POST", "/api/securities", map[string]any{"ticker": "AAPL", "name": "Apple Inc."})
	if err != nil {
		log.Fatal(err)
	}
	mustStatus(code, http.StatusCreated, "create security")

	code, body, err := owner.do("POST", "/api/securities/AAPL/buy", map[string]any{
		"date": "2026-01-02", "price": "100", "quantity": 3,
	})
	if err != nil {
		log.Fatal(err)
	}
	mustStatus(code, http.StatusCreated, "buy")
	if n, _ := body["lots_created"].(float64); n != 3 {
		log.Fatalf("buy: created %v lots, want 3", body["lots_created"])
	}

	code, _, err = owner.do("PUT", "/api/securities/AAPL/price", map[string]any{"price": "110", "asof": "2026-01-10"})
	if err != nil {
		log.Fatal(err)
	}
	mustStatus(code, http.StatusOK, "set price")

	code, body, err = owner.do("POST", "/api/securities/AAPL/sell", map[string]any{
		"date": "2026-01-10", "price": "110", "quantity": 2, "rule": "FIFO",
	})
	if err != nil {
		log.Fatal(err)
	}
	mustStatus(code, http.StatusOK, "sell")
	if n, _ := body["closed"].(float64); n != 2 {
		log.Fatalf("sell: closed %v lots, want 2", body["closed"])
	}

	code, body, err = owner.do("GET", "/api/portfolio", nil)
	if err != nil {
		log.Fatal(err)
	}
	mustStatus(code, http.StatusOK, "portfolio")
	log.Printf("portfolio: %v", body)

	ownerNick := fmt.Sprintf("farmer-%d", stamp)
	code, _, err = visitor.do("POST", "/api/farms/"+ownerNick+"/guestbook", map[string]any{"message": "nice sprouts"})
	if err != nil {
		log.Fatal(err)
	}
	mustStatus(code, http.StatusCreated, "guestbook post")

	code, _, err = owner.do("POST", "/api/farms/"+ownerNick+"/guestbook", map[string]any{"message": "hello me"})
	if err != nil {
		log.Fatal(err)
	}
	mustStatus(code, http.StatusBadRequest, "guestbook self post rejected")

	code, _, err = visitor.do("GET", "/api/securities/AAPL/report?farm="+ownerNick, nil)
	if err != nil {
		log.Fatal(err)
	}
	mustStatus(code, http.StatusOK, "visit report")

	log.Println("e2e passed")
}
