//go:build ffmpeg

package main

import (
	"github.com/zsiec/avdemux/internal/lavf"
	"github.com/zsiec/avdemux/internal/lavf/ffmpeg"
)

const backendName = "ffmpeg"

func newLibrary() lavf.Library { return ffmpeg.New() }
