// Package cec holds the shared message model of the CEC bus: the bounded frame
// buffer, typed addresses and opcodes, physical address topology helpers, and
// builders/parsers for the messages the tester and the follower exchange.
package cec
