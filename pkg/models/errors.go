/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import "errors"

var (
	errInvalidDuration     = errors.New("duration must be a string or a number of nanoseconds")
	errInvalidNetworkRange = errors.New("invalid default network range")
	errNATSURLRequired     = errors.New("events enabled but nats_url is empty")
	errUnknownDatabaseType = errors.New("unknown database type")
	errPostgresDSNRequired = errors.New("postgres database requires a dsn")
)
