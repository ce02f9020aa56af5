// Command envelope converts between audio files and the JSONL envelopes the
// Altur peer exchanges, one envelope per line.
//
//	go run ./cmd/envelope encode -in speech.wav -out call.jsonl -call-id abc123
//	go run ./cmd/envelope encode -in speech.raw -rate 24000 -channels 2 -out call.jsonl
//	go run ./cmd/envelope decode -in call.jsonl -out call.wav
//
// encode splits the input into 20 ms chunks. decode writes a mono WAV at
// the internal sample rate and skips envelopes for other calls.
package main

import (
	"bufio"
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"alturbridge/core"
	"alturbridge/serializers/altur"
	"alturbridge/utils/audio"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

const chunkMillis = 20

type encodeOptions struct {
	CallID   string
	Rate     int
	Channels int
	Params   altur.Params
}

type decodeOptions struct {
	CallID   string
	Channels int
	Params   altur.Params
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	logger := core.NewLogger(core.ConsoleHandler(os.Stderr), core.LevelInfo)
	core.SetLogger(logger)

	var err error
	switch os.Args[1] {
	case "encode":
		err = runEncode(os.Args[2:])
	case "decode":
		err = runDecode(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.With(map[string]any{"error": err}).Error(os.Args[1] + " failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: envelope encode|decode [flags]")
}

func runEncode(args []string) error {
	fs := flag.NewFlagSet("encode", flag.ExitOnError)
	in := fs.String("in", "", "input WAV or raw PCM file (default stdin)")
	out := fs.String("out", "", "output JSONL file (default stdout)")
	callID := fs.String("call-id", "", "call id stamped on every envelope (default random)")
	rate := fs.Int("rate", 16000, "sample rate of raw PCM input")
	channels := fs.Int("channels", 1, "channel count of raw PCM input")
	peerRate := fs.Int("peer-rate", altur.DefaultParams().PeerSampleRate, "sample rate of the µ-law payload")
	fs.Parse(args)

	data, err := readInput(*in)
	if err != nil {
		return err
	}
	w, closeOut, err := openOutput(*out)
	if err != nil {
		return err
	}
	defer closeOut()

	params := altur.DefaultParams()
	params.PeerSampleRate = *peerRate
	opts := encodeOptions{CallID: *callID, Rate: *rate, Channels: *channels, Params: params}
	if opts.CallID == "" {
		opts.CallID = uuid.NewString()
	}

	n, err := encode(data, w, opts)
	if err != nil {
		return err
	}
	core.GetLogger().With(map[string]any{"call_id": opts.CallID, "envelopes": n}).Info("encoded")
	return nil
}

func runDecode(args []string) error {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	in := fs.String("in", "", "input JSONL file (default stdin)")
	out := fs.String("out", "", "output WAV file (default stdout)")
	callID := fs.String("call-id", "", "call to extract (default the first envelope's call)")
	peerRate := fs.Int("peer-rate", altur.DefaultParams().PeerSampleRate, "sample rate of the µ-law payload")
	sampleRate := fs.Int("rate", altur.DefaultParams().SampleRate, "sample rate of the output WAV")
	channels := fs.Int("channels", 1, "channels of the output WAV: 1, or 2 to duplicate mono")
	fs.Parse(args)

	data, err := readInput(*in)
	if err != nil {
		return err
	}
	w, closeOut, err := openOutput(*out)
	if err != nil {
		return err
	}
	defer closeOut()

	params := altur.DefaultParams()
	params.PeerSampleRate = *peerRate
	params.SampleRate = *sampleRate
	return decode(bytes.NewReader(data), w, decodeOptions{CallID: *callID, Channels: *channels, Params: params})
}

// encode writes one envelope line per 20 ms of input and returns the number
// of envelopes written. WAV input carries its own format; anything else is
// treated as raw PCM at opts.Rate and opts.Channels. Rates too low for a
// 20 ms chunk to hold a whole frame get one frame per envelope.
func encode(data []byte, w io.Writer, opts encodeOptions) (int, error) {
	pcm, format, err := audio.StripWAVHeaderIfPresent(data)
	if err != nil {
		return 0, err
	}
	rate, channels := opts.Rate, opts.Channels
	if format != nil {
		rate, channels = format.SampleRate, format.Channels
	}
	if rate <= 0 || channels <= 0 {
		return 0, fmt.Errorf("invalid input format: rate %d, channels %d", rate, channels)
	}

	serializer, err := altur.NewSerializer(opts.CallID, opts.Params, altur.WithLogger(core.GetLogger()))
	if err != nil {
		return 0, err
	}

	frameBytes := 2 * channels
	chunkBytes := max(rate*chunkMillis/1000, 1) * frameBytes
	pcm = pcm[:len(pcm)-len(pcm)%frameBytes]

	bw := bufio.NewWriter(w)
	count := 0
	for start := 0; start < len(pcm); start += chunkBytes {
		end := min(start+chunkBytes, len(pcm))
		line, err := serializer.Serialize(&core.OutputAudioFrame{AudioChunk: core.AudioChunk{
			Data:       pcm[start:end],
			SampleRate: rate,
			Channels:   channels,
		}})
		if err != nil {
			return count, fmt.Errorf("chunk %d: %w", count, err)
		}
		bw.Write(line)
		bw.WriteByte('\n')
		count++
	}
	return count, bw.Flush()
}

// decode reads envelope lines from r and writes the audio of one call to w
// as a WAV. Blank lines are ignored.
func decode(r io.Reader, w io.Writer, opts decodeOptions) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var serializer *altur.Serializer
	var pcm []byte
	lineNo, skipped := 0, 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		if serializer == nil {
			callID := opts.CallID
			if callID == "" {
				id, err := sonic.Get(line, "call_id")
				if err != nil {
					return fmt.Errorf("line %d: %w", lineNo, altur.ErrMalformedEnvelope)
				}
				if callID, err = id.String(); err != nil || callID == "" {
					return fmt.Errorf("line %d: %w", lineNo, altur.ErrMalformedEnvelope)
				}
			}
			var err error
			serializer, err = altur.NewSerializer(callID, opts.Params, altur.WithLogger(core.GetLogger()))
			if err != nil {
				return err
			}
		}

		frame, err := serializer.Deserialize(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		audioFrame, ok := frame.(*core.InputAudioFrame)
		if !ok {
			skipped++
			continue
		}
		pcm = append(pcm, audioFrame.Data...)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if serializer == nil {
		return errors.New("no envelopes in input")
	}

	duration, err := audio.GetPCMDurationSeconds(pcm, 1, opts.Params.SampleRate)
	if err != nil {
		return err
	}
	core.GetLogger().With(map[string]any{
		"call_id":          serializer.CallID(),
		"skipped":          skipped,
		"duration_seconds": duration,
	}).Info("decoded")

	channels := 1
	if opts.Channels == 2 {
		pcm, channels = audio.MonoToStereo(pcm), 2
	} else if opts.Channels > 2 {
		return fmt.Errorf("unsupported output channels %d", opts.Channels)
	}
	wav, err := audio.PCMBytesToWavBytes(pcm, channels, opts.Params.SampleRate)
	if err != nil {
		return err
	}
	_, err = w.Write(wav)
	return err
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}
