//go:build nodebug

/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package debug

func Assert(bool, ...any)  {}
func AssertNoErr(error)    {}
func AssertMsg(bool, string) {}
