//go:build headless

package main

import (
	"github.com/Norsninja/music-chronus/internal/audiodev"
	"github.com/Norsninja/music-chronus/internal/config"
)

func newPlatformDevice(cfg config.Config, pull audiodev.BlockSource) (audiodev.Device, error) {
	return audiodev.NewHeadlessDevice(cfg.SampleRate, cfg.BufferSize, pull)
}
