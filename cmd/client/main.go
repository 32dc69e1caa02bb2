// Sample client for the classify endpoint: read one image, base64-encode
// it, send it, print the returned label. Image acquisition (map snapshot,
// camera, file) and rendering stay outside this boundary.
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

func main() {
	endpoint := flag.String("endpoint", "http://localhost:8080/v1/classify", "Classify endpoint URL")
	imagePath := flag.String("image", "", "Path to a JPEG or PNG image")
	timeout := flag.Duration("timeout", 60*time.Second, "Request timeout")
	flag.Parse()

	if *imagePath == "" {
		fmt.Fprintln(os.Stderr, "usage: client --image tile.jpg [--endpoint URL]")
		os.Exit(1)
	}

	imageBytes, err := os.ReadFile(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read image: %v\n", err)
		os.Exit(1)
	}

	payload, err := json.Marshal(map[string]string{
		"data": base64.StdEncoding.EncodeToString(imageBytes),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal request: %v\n", err)
		os.Exit(1)
	}

	req, err := http.NewRequest(http.MethodPost, *endpoint, bytes.NewBuffer(payload))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-Id", uuid.New().String())

	client := &http.Client{Timeout: *timeout}
	res, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read response: %v\n", err)
		os.Exit(1)
	}

	if res.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "classification failed (%d): %s\n", res.StatusCode, body)
		os.Exit(1)
	}

	fmt.Println(string(body))
}
