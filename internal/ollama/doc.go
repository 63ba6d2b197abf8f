// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
//
// The client talks to the /api/generate endpoint. A streaming generate call
// returns a Decoder which turns the newline-delimited JSON body into
// ResponseUnits, one per record, regardless of how the transport splits the
// bytes.
//
// # Key Types
//
//   - Client: HTTP client for Ollama API communication
//   - Decoder: incremental record decoder over a ChunkSource
//   - ResponseUnit: answer text, reasoning text and the final flag of one record
//   - MalformedRecordError, ServiceError, TransportError: mid-stream failures
//   - ClientError: failures before streaming begins
//
// # Usage
//
//	client := ollama.NewClient()
//	dec, err := client.GenerateStream(ctx, ollama.GenerateRequest{Prompt: "Hello"})
//	if err != nil {
//	    return err
//	}
//	defer dec.Close()
//	for {
//	    unit, err := dec.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Print(unit.Visible)
//	}
package ollama
