package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

func getJSON(path string, out any) error {
	resp, err := httpClient.Get(strings.TrimSuffix(nodeURL, "/") + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s: %s: %s", path, resp.Status, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// postMessage submits a signed message and returns the node's reply.
func postMessage(raw []byte) (string, error) {
	resp, err := httpClient.Post(strings.TrimSuffix(nodeURL, "/")+"/api/v1/messages", "application/json", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("submit: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return strings.TrimSpace(string(body)), nil
}

// nextNonce asks the node for addr's next message nonce.
func nextNonce(addr common.Address) (uint64, error) {
	var acct struct {
		Nonce uint64 `json:"nonce"`
	}
	if err := getJSON("/api/v1/accounts/"+addr.Hex(), &acct); err != nil {
		return 0, fmt.Errorf("failed to fetch nonce: %w", err)
	}
	return acct.Nonce + 1, nil
}

// masterAddress returns --master, or asks the node.
func masterAddress() (common.Address, error) {
	if signMaster != "" {
		return parseAddress("master", signMaster)
	}
	var m struct {
		Address common.Address `json:"address"`
	}
	if err := getJSON("/api/v1/master", &m); err != nil {
		return common.Address{}, fmt.Errorf("failed to fetch master (or pass --master): %w", err)
	}
	return m.Address, nil
}
