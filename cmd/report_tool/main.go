// report_tool prints the aggregated report for a stored video.
//
//	go run ./cmd/report_tool -video video-1712345678901 [-narrate]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"road-inspection/db"
	"road-inspection/report"
	"road-inspection/store"

	"github.com/joho/godotenv"
)

func main() {
	videoID := flag.String("video", "", "video id to report on")
	narrate := flag.Bool("narrate", false, "generate a plain-language summary (requires GEMINI_API_KEY)")
	flag.Parse()

	if *videoID == "" {
		flag.Usage()
		os.Exit(1)
	}
	_ = godotenv.Load()

	blobs, err := db.NewBlobStore()
	if err != nil {
		log.Fatalf("failed to open durability layer: %v", err)
	}
	defer blobs.Close()

	st := store.NewDetectionStore(blobs)
	st.Load()

	gen := report.NewGenerator(st)
	rep := gen.Summarize(*videoID)
	if rep == nil {
		log.Fatalf("no report available for video %s (unknown id or zero detections)", *videoID)
	}

	out, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		log.Fatalf("failed to encode report: %v", err)
	}
	fmt.Println(string(out))

	if *narrate {
		narrator, err := report.NewNarrator()
		if err != nil {
			log.Fatalf("failed to create narrator: %v", err)
		}
		summary, err := narrator.Describe(rep)
		if err != nil {
			log.Fatalf("failed to generate summary: %v", err)
		}
		fmt.Println()
		fmt.Println(summary)
	}
}
