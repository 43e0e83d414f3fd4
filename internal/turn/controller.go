// Package turn implements the voice turn-taking state machine that arbitrates
// between the speech output engine and the speech capture engine.
//
// The controller is a pure transition function: Apply takes the current State
// and one tagged Event and returns the next State plus an ordered list of
// side-effect commands. The session runtime executes the effects (engine
// calls, timer arm/disarm, utterance handoff); Apply itself never blocks,
// spawns, or reads a clock, so every reachable trace can be unit-tested
// without real engines.
package turn

import "time"

// Apply processes one external event against the current state.
//
// The returned effects must be executed in order. Timer events whose Attempt
// token no longer matches the live attempt are discarded, so a timer that
// fires after its attempt finished is a no-op.
func Apply(cfg Config, st State, ev Event) (State, []Effect) {
	var fx []Effect

	switch ev.Kind {
	case EvOutputStart:
		// Output speech preempts any in-flight capture attempt outright:
		// abort, never a graceful stop, so the engine cannot hear the output.
		if captureLive(st.Turn) {
			fx = append(fx, Effect{Kind: FxAbortCapture})
			fx = disarmAttemptTimers(fx)
		}
		st.Speaking = true
		st.UserSpeaking = false
		st.Starting = false
		st.Buffer = ""
		st.BufferFinal = false
		st.Turn = OutputSpeaking

	case EvOutputEnd:
		st.Speaking = false
		if st.Listening && !st.FocusMode {
			st.Turn = CaptureStarting
			fx = append(fx, armTimer(st, TimerSettle, cfg.SettleDelay))
		} else {
			st.Turn = Idle
		}

	case EvTimerFired:
		if ev.Attempt != st.Attempt {
			return st, nil
		}
		st, fx = applyTimer(cfg, st, ev, fx)

	case EvCaptureStarted:
		st.Starting = false
		if st.Turn == CaptureActive {
			fx = append(fx,
				armTimer(st, TimerMaxDuration, cfg.MaxUtterance),
				armTimer(st, TimerWatchdog, cfg.WatchdogTick))
		}

	case EvCaptureResult:
		if st.Speaking {
			// Abort is in flight; anything the engine still emits is echo.
			return st, nil
		}
		switch st.Turn {
		case CaptureActive:
			st.Seq++
			fx = append(fx, Effect{Kind: FxDisarmTimer, Timer: TimerSilence})
			if ev.Text != "" && !st.UserSpeaking {
				st.UserSpeaking = true
			}
			if ev.Final && ev.Text != "" {
				st.Buffer = ev.Text
				st.BufferFinal = true
				st.Turn = CaptureFinalizing
				fx = append(fx, armTimer(st, TimerFinalDebounce, cfg.FinalDebounce))
			} else {
				// An interim guess may only seed an empty buffer; a better
				// interim never overwrites text we already hold.
				if ev.Text != "" && st.Buffer == "" {
					st.Buffer = ev.Text
				}
				d := cfg.SilenceNoText
				if ev.Text != "" {
					d = cfg.SilenceWithText
				}
				fx = append(fx, armTimer(st, TimerSilence, d))
			}
		case CaptureFinalizing:
			// Final result racing a silence-triggered stop: the final wins.
			if ev.Final && ev.Text != "" {
				st.Buffer = ev.Text
				st.BufferFinal = true
			}
		}

	case EvCaptureError:
		switch ev.Err {
		case ErrPermission:
			st.Listening = false
			st.UserSpeaking = false
			st.Starting = false
			st.Buffer = ""
			st.BufferFinal = false
			fx = disarmAttemptTimers(fx)
			fx = append(fx, Effect{Kind: FxNotifyPermission})
			if st.Turn != OutputSpeaking {
				st.Turn = Idle
			}
		case ErrNoSpeech:
			fx = append(fx, Effect{Kind: FxNotifyNoSpeech})
		case ErrAborted, ErrGeneric:
			// Expected self-abort, or a recoverable failure the end/retry
			// path will absorb.
		}

	case EvCaptureEnd:
		buffer := st.Buffer
		fromAttempt := st.Turn == CaptureActive || st.Turn == CaptureFinalizing
		st.UserSpeaking = false
		st.Starting = false
		st.Buffer = ""
		st.BufferFinal = false
		fx = disarmAttemptTimers(fx)
		switch {
		case fromAttempt && buffer != "" && !st.Speaking:
			fx = append(fx, Effect{Kind: FxEmitUtterance, Text: buffer})
			st.Turn = Cooldown
		case fromAttempt && st.Listening && !st.Speaking && !st.FocusMode:
			st.Turn = CaptureStarting
			fx = append(fx, armTimer(st, TimerRetry, cfg.RetryDelay))
		case st.Turn != OutputSpeaking:
			st.Turn = Idle
		}

	case EvSetListening:
		if ev.On {
			st.Listening = true
			if !st.Speaking && !st.FocusMode && (st.Turn == Idle || st.Turn == Cooldown) {
				st.Turn = CaptureStarting
				fx = append(fx, armTimer(st, TimerSettle, cfg.SettleDelay))
			}
		} else {
			st.Listening = false
			st.UserSpeaking = false
			st.Starting = false
			st.Buffer = ""
			st.BufferFinal = false
			if captureLive(st.Turn) {
				fx = append(fx, Effect{Kind: FxAbortCapture})
				fx = disarmAttemptTimers(fx)
			}
			if st.Turn != OutputSpeaking {
				st.Turn = Idle
			}
		}

	case EvSetFocus:
		if ev.On {
			st.FocusMode = true
			st.Listening = false
			st.UserSpeaking = false
			st.Starting = false
			st.Buffer = ""
			st.BufferFinal = false
			if captureLive(st.Turn) {
				fx = append(fx, Effect{Kind: FxAbortCapture})
				fx = disarmAttemptTimers(fx)
			}
			fx = append(fx, Effect{Kind: FxCancelSpeech})
			if st.Turn != OutputSpeaking {
				st.Turn = Idle
			}
		} else {
			st.FocusMode = false
			st.Listening = true
			if !st.Speaking && (st.Turn == Idle || st.Turn == Cooldown) {
				st.Turn = CaptureStarting
				fx = append(fx, armTimer(st, TimerSettle, cfg.ResumeDelay))
			}
		}
	}

	return st, fx
}

func applyTimer(cfg Config, st State, ev Event, fx []Effect) (State, []Effect) {
	switch ev.Timer {
	case TimerSettle, TimerRetry:
		if st.Turn != CaptureStarting {
			return st, fx
		}
		if !st.Listening || st.FocusMode || st.Speaking || st.Starting {
			st.Turn = Idle
			return st, fx
		}
		st.Attempt++
		st.Seq = 0
		st.Starting = true
		st.Buffer = ""
		st.BufferFinal = false
		st.Turn = CaptureActive
		fx = append(fx, Effect{Kind: FxStartCapture})

	case TimerSilence:
		if st.Turn == CaptureActive {
			st.Turn = CaptureFinalizing
			fx = append(fx, Effect{Kind: FxStopCapture})
		}

	case TimerFinalDebounce:
		if st.Turn == CaptureFinalizing && st.BufferFinal {
			fx = append(fx, Effect{Kind: FxStopCapture})
		}

	case TimerMaxDuration:
		if st.Turn == CaptureActive && st.Buffer != "" {
			st.Turn = CaptureFinalizing
			fx = append(fx, Effect{Kind: FxStopCapture})
		}

	case TimerWatchdog:
		if st.Turn != CaptureActive {
			return st, fx
		}
		if st.Buffer != "" && ev.Seq == st.Seq {
			// Results came in, then nothing for a whole tick and the engine
			// never signaled completion. Force it.
			st.Turn = CaptureFinalizing
			fx = append(fx, Effect{Kind: FxStopCapture})
		} else {
			fx = append(fx, armTimer(st, TimerWatchdog, cfg.WatchdogTick))
		}
	}
	return st, fx
}

func captureLive(t TurnState) bool {
	return t == CaptureStarting || t == CaptureActive || t == CaptureFinalizing
}

func armTimer(st State, name TimerName, d time.Duration) Effect {
	return Effect{Kind: FxArmTimer, Timer: name, Duration: d, Attempt: st.Attempt, Seq: st.Seq}
}

func disarmAttemptTimers(fx []Effect) []Effect {
	for _, t := range []TimerName{TimerSettle, TimerSilence, TimerFinalDebounce, TimerMaxDuration, TimerWatchdog, TimerRetry} {
		fx = append(fx, Effect{Kind: FxDisarmTimer, Timer: t})
	}
	return fx
}
