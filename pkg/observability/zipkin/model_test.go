// Copyright (c) Bas van Beek 2022.
// Copyright (c) Tetrate, Inc 2021.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package zipkin

import (
	"testing"
	"time"

	"github.com/openzipkin/zipkin-go/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basvanbeek/span-pipeline/pkg/observability"
)

func TestToModel(t *testing.T) {
	start := time.Unix(1, 0)
	span := newSpanData("get_role_by_id", start, 5*time.Millisecond, observability.EventClient)
	span.Tags[observability.ComponentTag] = "user"
	span.Tags[observability.HTTPStatus] = 200
	span.Logs = append(span.Logs, observability.LogRecord{
		Timestamp: start.Add(time.Millisecond),
		Fields: map[string]interface{}{
			observability.EventKey:   "retry",
			observability.PayloadKey: 2,
		},
	})

	m, err := ToModel(span, "fallback")
	require.NoError(t, err)

	assert.Equal(t, span.SpanContext, m.SpanContext)
	assert.Equal(t, "get_role_by_id", m.Name)
	assert.Equal(t, model.Client, m.Kind)
	assert.Equal(t, start, m.Timestamp)
	assert.Equal(t, 5*time.Millisecond, m.Duration)
	require.NotNil(t, m.LocalEndpoint)
	assert.Equal(t, "user", m.LocalEndpoint.ServiceName)
	assert.Equal(t, map[string]string{observability.HTTPStatus: "200"}, m.Tags)
	assert.Equal(t, []model.Annotation{
		{Timestamp: start.Add(time.Millisecond), Value: "retry=2"},
	}, m.Annotations)
}

func TestToModelServerKind(t *testing.T) {
	span := newSpanData("get_user", time.Unix(1, 0), time.Millisecond, observability.EventServer)

	m, err := ToModel(span, "")
	require.NoError(t, err)
	assert.Equal(t, model.Server, m.Kind)
	assert.Equal(t, DefaultServiceName, m.LocalEndpoint.ServiceName)
	assert.Empty(t, m.Annotations)
}
