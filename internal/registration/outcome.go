/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package registration

import (
	"context"
	"errors"
	"time"
)

// Outcome is what a register command did with one point's record.
type Outcome struct {
	Index   int
	Record  *Record // nil when the search produced nothing
	Applied bool
	Removed bool
	At      time.Time
}

// Sink persists outcomes, e.g. to the project's result index.
type Sink interface {
	SaveOutcomes(ctx context.Context, batch []Outcome) error
}

// Sinks fans a batch out to several sinks. Every sink is tried; the
// errors are joined.
type Sinks []Sink

func (s Sinks) SaveOutcomes(ctx context.Context, batch []Outcome) error {
	var errs []error
	for _, sink := range s {
		if sink == nil {
			continue
		}
		if err := sink.SaveOutcomes(ctx, batch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
