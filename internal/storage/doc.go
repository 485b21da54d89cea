/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage implements project persistence and result indexing.
// It handles create/open/save for the JSON manifest (stos.json) with transactional writes, timestamped backups and schema validation.
// It also manages the per-project embedded SQLite index at <project>/.gopyre/index.sqlite that records registration results.
// The embedded index is disposable: it is rebuilt empty when it cannot be opened.
// An optional postgres log shares registration results between workstations.
package storage
