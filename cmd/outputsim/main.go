// Command outputsim is a terminal stand-in for an output display.
// It connects to a controller, prints every state message it
// receives, and reconnects with exponential backoff when the
// connection drops.
//
// Usage: go run ./cmd/outputsim --addr 127.0.0.1:7160 --code 123456 --client-type output1
//
// With no --addr the simulator browses mDNS for an advertised
// controller and connects to the first one it finds.
package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"github.com/PeterAlaks/lyric-display-app-sub003/internal/mdns"
)

func main() {
	addr := flag.String("addr", "", "Controller address (default: discover via mDNS)")
	token := flag.String("token", "", "Access token from an earlier pairing")
	code := flag.String("code", "", "Join code to pair with (alternative to --token)")
	name := flag.String("name", "Simulated Output", "Output name to register when pairing")
	clientType := flag.String("client-type", "output1", "Output slot: output1, output2, or stage")
	deviceID := flag.String("device-id", "outputsim", "Stable device identifier")
	insecure := flag.Bool("insecure", false, "Use ws:// instead of wss://")
	flag.Parse()

	if *addr == "" {
		found, err := discoverController()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Discovery failed: %v\n", err)
			os.Exit(1)
		}
		*addr = found
	}

	if *token == "" && *code != "" {
		t, err := pairWithCode(*addr, *code, *name, *clientType, *deviceID, *insecure)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Pairing failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Paired successfully.")
		*token = t
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	// Exponential backoff between reconnect attempts, capped so a
	// restarted controller is picked up within half a minute.
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // retry forever

	for {
		connected, err := runSession(*addr, *token, *clientType, *insecure, interrupt)
		if err == errInterrupted {
			fmt.Println("Interrupted")
			return
		}
		if connected {
			bo.Reset()
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		}

		wait := bo.NextBackOff()
		fmt.Printf("Reconnecting in %s...\n", wait.Round(time.Millisecond))
		select {
		case <-time.After(wait):
		case <-interrupt:
			fmt.Println("Interrupted")
			return
		}
	}
}

var errInterrupted = fmt.Errorf("interrupted")

// discoverController browses the local network for an advertised
// controller and returns the first match as host:port.
func discoverController() (string, error) {
	fmt.Println("No --addr given, browsing for controllers...")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	controllers, err := mdns.Discover(ctx)
	if err != nil {
		return "", err
	}
	if len(controllers) == 0 {
		return "", fmt.Errorf("no controller found on the local network (is it running with --mdns?)")
	}

	c := controllers[0]
	fmt.Printf("Found controller %q at %s:%d\n", c.Name, c.Host, c.Port)
	return controllerAddr(c), nil
}

// controllerAddr formats a discovered controller as a dialable
// host:port, bracketing IPv6 hosts.
func controllerAddr(c mdns.DiscoveredController) string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// pairWithCode exchanges a join code for an access token at the
// controller's /pair endpoint.
func pairWithCode(addr, code, name, clientType, deviceID string, insecure bool) (string, error) {
	scheme := "https"
	if insecure {
		scheme = "http"
	}

	body, err := json.Marshal(map[string]string{
		"code":        code,
		"output_name": name,
		"client_type": clientType,
		"device_id":   deviceID,
	})
	if err != nil {
		return "", err
	}

	client := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}

	resp, err := client.Post(fmt.Sprintf("%s://%s/pair", scheme, addr), "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			ErrorCode    string `json:"error_code"`
			Message      string `json:"message"`
			RetryAfterMs int64  `json:"retry_after_ms"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.ErrorCode != "" {
			if errResp.RetryAfterMs > 0 {
				return "", fmt.Errorf("%s (retry in %dms)", errResp.Message, errResp.RetryAfterMs)
			}
			return "", fmt.Errorf("%s", errResp.Message)
		}
		return "", fmt.Errorf("controller returned status %d", resp.StatusCode)
	}

	var pairResp struct {
		OutputID string `json:"output_id"`
		Token    string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pairResp); err != nil {
		return "", err
	}
	return pairResp.Token, nil
}

// runSession runs one connection until it drops or the user
// interrupts. Returns whether the dial succeeded, so the caller can
// reset its backoff.
func runSession(addr, token, clientType string, insecure bool, interrupt chan os.Signal) (bool, error) {
	scheme := "wss"
	if insecure {
		scheme = "ws"
	}

	query := url.Values{}
	if token != "" {
		query.Set("token", token)
	}
	query.Set("client_type", clientType)

	u := url.URL{Scheme: scheme, Host: addr, Path: "/ws", RawQuery: query.Encode()}
	fmt.Printf("Connecting to %s...\n", u.String())

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		// The controller uses a self-signed certificate; real
		// outputs pin the fingerprint from pairing instead.
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}

	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	fmt.Println("Connected. Waiting for state updates...")

	done := make(chan error, 1)
	go func() {
		count := 0
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				done <- err
				return
			}
			count++
			render(count, data)
		}
	}()

	select {
	case err := <-done:
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
			return true, err
		}
		return true, nil
	case <-interrupt:
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
		return true, errInterrupted
	}
}

// render prints a received message the way a display would react to
// it: lyric lines, selection, style, and visibility changes.
func render(count int, data []byte) {
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		fmt.Printf("[%d] raw: %s\n", count, string(data))
		return
	}

	switch msg.Type {
	case "lyrics.set":
		var p struct {
			Lines []struct {
				Index int    `json:"index"`
				Text  string `json:"text"`
			} `json:"lines"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err == nil {
			fmt.Printf("[%d] lyrics.set: %d lines\n", count, len(p.Lines))
		}
	case "line.select":
		var p struct {
			Index int `json:"index"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err == nil {
			fmt.Printf("[%d] line.select: index=%d\n", count, p.Index)
		}
	case "style.update":
		var p struct {
			OutputID string `json:"output_id"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err == nil {
			fmt.Printf("[%d] style.update: output=%s\n", count, p.OutputID)
		}
	case "output.visibility":
		var p struct {
			Visible bool `json:"visible"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err == nil {
			fmt.Printf("[%d] output.visibility: visible=%v\n", count, p.Visible)
		}
	case "session.status":
		var p struct {
			SessionID string `json:"session_id"`
			Status    string `json:"status"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err == nil {
			fmt.Printf("[%d] session.status: %s (%s)\n", count, p.Status, p.SessionID)
		}
	default:
		fmt.Printf("[%d] type=%s\n", count, msg.Type)
	}
}
