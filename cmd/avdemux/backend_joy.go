//go:build !ffmpeg

package main

import (
	"github.com/zsiec/avdemux/internal/lavf"
	"github.com/zsiec/avdemux/internal/lavf/joy"
)

const backendName = "joy4"

func newLibrary() lavf.Library { return joy.New() }
