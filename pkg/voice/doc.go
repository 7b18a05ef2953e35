// Package voice runs one EcoTrack call session: the microphone button,
// Green's replies and the pulsing orb.
//
// A Pipeline joins four parts behind a single API:
//
//   - capture.Controller turns microphone audio into a live preview and,
//     when listening stops, the text to commit
//   - conversation.Machine keeps the transcript and asks the responder for
//     each reply
//   - speech.Synthesizer voices replies and owns the speaking flag
//   - visualizer.Visualizer draws the orb from whichever flag is set
//
// The pipeline guarantees that listening and speaking are never both on.
// Starting to listen silences the current reply first, and a reply that
// arrives while the microphone is open is kept in the transcript but not
// spoken.
//
// # Usage
//
//	p, err := voice.New(voice.DefaultConfig(),
//	    voice.WithCapture(capture.NewDeepgram(dgCfg, logger)),
//	    voice.WithSynthesis(speech.NewPlayer(ttsChain, speaker, logger)),
//	    voice.WithResponder(responder),
//	    voice.WithMicrophone(mic),
//	    voice.WithNotifier(hub),
//	)
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	p.OnStatus(func(s voice.Status) {
//	    fmt.Printf("%s listening=%t speaking=%t\n", s.State, s.Flags.Listening, s.Flags.Speaking)
//	})
//
//	p.StartListening(ctx)
//	// ... user talks ...
//	text, err := p.StopListening(ctx)
//
// # Latency Metrics
//
// Every turn records when capture ended, when the reply arrived and when it
// started and finished playing:
//
//	m := p.Metrics().Average()
//	fmt.Println(m.FormatLatency())
//
// Failures never escape as panics. They are reported to the notify.Sink as
// notices with one of the Code* values and the session carries on.
package voice
