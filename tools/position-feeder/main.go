// position-feeder replays a simple route against a running dispatchd
// instance by POSTing position samples to its /position endpoint.
// Useful for exercising geofence transitions locally.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

type sample struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	SpeedKmh  float64 `json:"speed_kmh,omitempty"`
	Timestamp string  `json:"timestamp"`
}

func main() {
	target := flag.String("target", "http://localhost:8080/position", "dispatchd position endpoint")
	route := flag.String("route", "", "comma-separated lat:lng waypoints, e.g. 3.139:101.687,3.140:101.688")
	interval := flag.Duration("interval", 2*time.Second, "delay between samples")
	speed := flag.Float64("speed", 30, "reported speed in km/h")
	loop := flag.Bool("loop", false, "replay the route forever")
	flag.Parse()

	if *route == "" {
		fmt.Fprintln(os.Stderr, "route is required")
		flag.Usage()
		os.Exit(2)
	}

	waypoints, err := parseRoute(*route)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid route: %v\n", err)
		os.Exit(2)
	}

	client := &http.Client{Timeout: 10 * time.Second}

	for {
		for i, wp := range waypoints {
			s := sample{
				Lat:       wp[0],
				Lng:       wp[1],
				SpeedKmh:  *speed,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			}
			if err := send(client, *target, s); err != nil {
				log.Printf("sample %d failed: %v", i, err)
			} else {
				log.Printf("sent sample %d: lat=%g lng=%g", i, s.Lat, s.Lng)
			}
			time.Sleep(*interval)
		}
		if !*loop {
			return
		}
	}
}

func parseRoute(route string) ([][2]float64, error) {
	var waypoints [][2]float64
	for _, part := range strings.Split(route, ",") {
		coords := strings.Split(strings.TrimSpace(part), ":")
		if len(coords) != 2 {
			return nil, fmt.Errorf("waypoint %q must be lat:lng", part)
		}
		lat, err := strconv.ParseFloat(coords[0], 64)
		if err != nil {
			return nil, fmt.Errorf("waypoint %q: %w", part, err)
		}
		lng, err := strconv.ParseFloat(coords[1], 64)
		if err != nil {
			return nil, fmt.Errorf("waypoint %q: %w", part, err)
		}
		waypoints = append(waypoints, [2]float64{lat, lng})
	}
	return waypoints, nil
}

func send(client *http.Client, target string, s sample) error {
	body, err := json.Marshal(s)
	if err != nil {
		return err
	}

	resp, err := client.Post(target, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
