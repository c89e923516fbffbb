// Copyright 2024 Google, LLC
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

package services

// BigQuery statements. `%s` is the fully qualified table name; every value is
// bound as a named query parameter.
const (
	QryCreateProject = "MERGE `%s` T USING (SELECT @id AS id) S ON T.id = S.id " +
		"WHEN NOT MATCHED THEN INSERT (id, owner_id, name, original_video_url, detected_segments, state, created_date) " +
		"VALUES (@id, @owner_id, @name, '', [], @state, @created_date)"

	QryUpdateProject = "UPDATE `%s` SET state = @state, detected_segments = @segments, original_video_url = @original_video_url " +
		"WHERE id = @id AND state = @pending"

	QryFindProjectById = "SELECT id, owner_id, name, original_video_url, detected_segments, state, created_date FROM `%s` WHERE id = @id"

	QryListProjectsByOwner = "SELECT id, owner_id, name, original_video_url, detected_segments, state, created_date FROM `%s` " +
		"WHERE owner_id = @owner_id ORDER BY created_date DESC, id"

	QryListStalePending = "SELECT id, owner_id, name, original_video_url, detected_segments, state, created_date FROM `%s` " +
		"WHERE state = @pending AND created_date < @before ORDER BY created_date"
)
