// Copyright 2024 The bitpool authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jsonrpc

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// cookieRecheckInterval limits how often the cookie file's modification
// time is probed.
const cookieRecheckInterval = 30 * time.Second

func readCookieFile(path string) (username, password string, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	parts := strings.SplitN(strings.TrimSpace(string(b)), ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("jsonrpc: malformed cookie file %s", path)
	}
	return parts[0], parts[1], nil
}

// CookieAuth returns an AuthFunc that reads credentials from a Bitcoin Core
// cookie file. The file is re-read when its modification time changes,
// probed at most every 30 seconds, so long-running clients keep working
// across node restarts.
func CookieAuth(path string) AuthFunc {
	var (
		mu            sync.Mutex
		lastCheckTime time.Time
		lastModTime   time.Time
		curUsername   string
		curPassword   string
		curError      error
	)

	return func() (string, string, error) {
		mu.Lock()
		defer mu.Unlock()

		if lastCheckTime.IsZero() || time.Now().After(lastCheckTime.Add(cookieRecheckInterval)) {
			lastCheckTime = time.Now()
			st, err := os.Stat(path)
			if err != nil {
				curError = err
			} else if modTime := st.ModTime(); !modTime.Equal(lastModTime) {
				lastModTime = modTime
				curUsername, curPassword, curError = readCookieFile(path)
				if curError == nil {
					log.Debugf("Reloaded RPC cookie from %s", path)
				}
			}
		}
		return curUsername, curPassword, curError
	}
}
