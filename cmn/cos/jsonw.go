/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import jsoniter "github.com/json-iterator/go"

// JSON is the shared codec instance used across the RPC surface and config
// loader; jsoniter is a drop-in faster replacement for encoding/json and is
// what the teacher (aistore) uses at every marshal/unmarshal site.
var JSON = jsoniter.ConfigCompatibleWithStandardLibrary

func MustMarshal(v any) []byte {
	b, err := JSON.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
