// SPDX-License-Identifier: MIT
package main

import (
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"pulse/cmd"
	"pulse/internal/audio"
	"pulse/internal/config"
	applog "pulse/internal/log"
	"pulse/internal/mapper"
	"pulse/internal/transport"
	"pulse/internal/transport/udp"
	"pulse/internal/tui"
	"pulse/pkg/build"
)

// main runs in three phases:
//
// 1. Startup (cold path): build info, PortAudio, config, one-off commands.
// 2. Concurrent (hot path): audio engine, mapper, transports, hot reload, TUI.
// 3. Shutdown (cold path): stop recording, stop transports, release devices.
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	build.Initialize()

	// One thread for the audio callback, one for rendering and I/O.
	runtime.GOMAXPROCS(2)

	if err := audio.Initialize(); err != nil {
		log.Fatal(err)
	}
	defer audio.Terminate()

	cfg, err := cmd.ParseArgs()
	if err != nil {
		log.Fatal(err)
	}

	if level, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(level)
	}
	if cfg.Debug {
		applog.SetLevel(applog.LevelDebug)
	}

	if cfg.Command == "list" {
		if err := audio.ListDevices(); err != nil {
			log.Fatal(err)
		}
		return
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	// No device on the command line or in the file: offer the picker.
	// Quitting it without a selection keeps the system default.
	if cfg.TUIMode && cfg.Audio.InputDevice == config.MinDeviceID {
		picker := tea.NewProgram(tui.NewDeviceListModel(), tea.WithAltScreen())
		model, err := picker.Run()
		if err != nil {
			log.Fatal(err)
		}
		if m, ok := model.(tui.DeviceListModel); ok && m.Chosen != config.MinDeviceID {
			cfg.Audio.InputDevice = m.Chosen
		}
	}

	engine, err := audio.NewEngine(cfg)
	if err != nil {
		log.Fatal(err)
	}

	// The first PortAudio callback after this call marks the start of the
	// hot path.
	if err := engine.StartInputStream(); err != nil {
		log.Fatal(err)
	}

	if cfg.Recording.Enabled {
		if err := engine.StartRecording(cfg.Recording.OutputFile); err != nil {
			log.Fatal(err)
		}
		applog.Infof("recording to %s", cfg.Recording.OutputFile)
	}

	vis := mapper.New(engine.Frames(), engine.Grid(), config.DefaultRenderInterval)
	vis.Start()

	var wsTransport *transport.WebSocketTransport
	var wsFeeder *transport.Feeder
	if cfg.Transport.WebsocketEnabled {
		wsTransport = transport.NewWebSocketTransport(cfg.Transport.WebsocketAddr)
		wsFeeder = transport.NewFeeder(wsTransport, config.DefaultRenderInterval,
			func() (any, uint64) { return vis.Publisher().Read() })
		wsFeeder.Start()
		applog.Infof("websocket transport on %s", cfg.Transport.WebsocketAddr)
	}

	var udpPublisher *udp.Publisher
	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			log.Fatal(err)
		}
		udpPublisher, err = udp.NewPublisher(cfg.Transport.UDPSendInterval, sender,
			engine.Frames(), engine.Grid().Publisher())
		if err != nil {
			log.Fatal(err)
		}
		udpPublisher.Start()
		applog.Infof("udp transport to %s", cfg.Transport.UDPTargetAddress)
	}

	var hot *config.HotConfig
	if cfg.ConfigPath != "" {
		hot, err = config.NewHotConfig(cfg.ConfigPath)
		if err != nil {
			log.Fatal(err)
		}
		hot.OnReload(func(c *config.Config) {
			engine.ApplyTuning(c)
			vis.SetGridParams(c.Tuning.GridParams())
			if level, ok := applog.ParseLevel(c.LogLevel); ok {
				applog.SetLevel(level)
			}
		})
		if err := hot.Watch(); err != nil {
			log.Fatal(err)
		}
	}

	if cfg.TUIMode {
		program := tea.NewProgram(
			tui.NewMeterModel(engine.Frames(), engine.Grid().Publisher()),
			tea.WithAltScreen(),
		)
		go func() {
			<-done
			program.Quit()
		}()
		if _, err := program.Run(); err != nil {
			applog.Errorf("tui: %v", err)
		}
	} else {
		applog.Infof("running headless, '%s --help' for usage", build.GetBuildFlags().Name)
		<-done
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	if hot != nil {
		hot.Close()
	}
	if udpPublisher != nil {
		if err := udpPublisher.Close(); err != nil {
			applog.Errorf("udp shutdown: %v", err)
		}
	}
	if wsTransport != nil {
		wsFeeder.Stop()
		if err := wsTransport.Close(); err != nil {
			applog.Errorf("websocket shutdown: %v", err)
		}
	}
	if err := vis.Stop(); err != nil {
		applog.Errorf("mapper shutdown: %v", err)
	}

	if cfg.Recording.Enabled {
		if err := engine.StopRecording(); err != nil {
			applog.Errorf("stopping recording: %v", err)
		} else {
			applog.Infof("recording saved to %s", cfg.Recording.OutputFile)
		}
	}

	if err := engine.Close(); err != nil {
		applog.Errorf("closing audio engine: %v", err)
	}
}
