// Copyright 2021 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package io reads switch inputs on sysfs GPIO pins, such as an encoder
// homing switch.
package io

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

// Time allowed for udev to set the permissions of a newly exported pin.
const exportTimeout = 2 * time.Second

// exportPin makes the sysfs files of a pin available, and waits until
// its value file can be opened.
func exportPin(gpio int) error {
	val := pinFile(gpio, valueFile)
	if unix.Access(val, unix.W_OK|unix.R_OK) == nil {
		return nil
	}
	if err := writeAttr(exportFile, strconv.Itoa(gpio)); err != nil {
		return err
	}
	for wait := time.Duration(0); wait < exportTimeout; wait += time.Millisecond {
		if unix.Access(val, unix.W_OK|unix.R_OK) == nil {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	return fmt.Errorf("gpio%d: %s not accessible", gpio, val)
}

// releasePin removes the sysfs files of a pin.
func releasePin(gpio int) {
	writeAttr(unexportFile, strconv.Itoa(gpio))
}

// writeAttr writes a string to a sysfs attribute.
func writeAttr(name, s string) error {
	f, err := os.OpenFile(name, os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(s)
	return err
}
