// Package mjrdump is a CLI utility that prints the track info and frame
// index of a container file.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"replay/pkg/mjr"
)

const usage = `print container metadata and frame index
example: mjrdump ./storage/recordings/rec-7-audio.mjr`

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	args := os.Args
	if len(args) != 2 {
		fmt.Println(usage)
		return nil
	}

	file, err := os.Open(args[1])
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}
	size := stat.Size()

	info, err := mjr.SniffTrack(file, size)
	if err != nil {
		return fmt.Errorf("sniff: %w", err)
	}

	fmt.Printf("kind: %v\ncodec: %v\n", info.Kind, info.Codec)
	if info.CreatedTime != 0 {
		fmt.Printf("created: %v\n", time.Unix(info.CreatedTime, 0).UTC())
	}
	if info.WrittenTime != 0 {
		fmt.Printf("written: %v\n", time.Unix(info.WrittenTime, 0).UTC())
	}

	list, err := mjr.BuildIndex(file, size, info.Kind)
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}

	fmt.Printf("frames: %v\n", len(list))
	for i, frame := range list {
		fmt.Printf("%6d seq=%5d ts=%-12d len=%-5d offset=%d\n",
			i, frame.Seq, frame.TS, frame.Len, frame.Offset)
	}
	return nil
}
