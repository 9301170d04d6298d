// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/AleutianAI/AleutianServe/services/gateway/datatypes"
)

// fingerprintChat derives the response-cache key for a buffered chat
// request.
//
// # Description
//
// The key is a SHA-256 digest over, in order: the model name; for each
// message its role, its prompt text, and its image URLs; then the
// little-endian encodings of max_tokens (uint32), temperature, and top_p
// (IEEE-754 bits) for whichever of those the request actually set. Absent
// fields contribute nothing, so {"temperature": null} and a missing
// temperature key fingerprint identically, while 0 and absent do not.
//
// Image content is keyed by URL, not by the bytes behind it. The stream
// flag is never hashed; streaming requests are not fingerprinted at all.
func fingerprintChat(req *datatypes.ChatCompletionRequest) string {
	h := sha256.New()
	h.Write([]byte(req.Model))
	for _, m := range req.Messages {
		h.Write([]byte(m.Role))
		h.Write([]byte(m.Content.PromptText()))
		for _, u := range m.Content.ImageURLs() {
			h.Write([]byte(u))
		}
	}
	var buf [4]byte
	if req.MaxTokens != nil {
		binary.LittleEndian.PutUint32(buf[:], uint32(*req.MaxTokens))
		h.Write(buf[:])
	}
	if req.Temperature != nil {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(*req.Temperature))
		h.Write(buf[:])
	}
	if req.TopP != nil {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(*req.TopP))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
