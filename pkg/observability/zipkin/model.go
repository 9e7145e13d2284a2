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
	"fmt"

	"github.com/openzipkin/zipkin-go/model"

	"github.com/basvanbeek/span-pipeline/pkg/observability"
)

// ToModel translates a finished span into the zipkin-go v2 span model. The
// client and server events become the span kind; other events become timed
// annotations.
func ToModel(span observability.SpanData, serviceName string) (model.SpanModel, error) {
	if err := validate(span); err != nil {
		return model.SpanModel{}, err
	}

	tags, name := splitComponent(span.Tags, serviceName)
	m := model.SpanModel{
		SpanContext:   span.SpanContext,
		Name:          span.Name,
		Timestamp:     span.Start,
		Duration:      span.Duration,
		LocalEndpoint: &model.Endpoint{ServiceName: name},
		Tags:          make(map[string]string, len(tags)),
	}
	for k, v := range tags {
		m.Tags[k] = fmt.Sprint(v)
	}

	for _, l := range span.Logs {
		switch event := l.Event(); event {
		case observability.EventClient:
			m.Kind = model.Client
		case observability.EventServer:
			m.Kind = model.Server
		default:
			value := event
			if p, ok := l.Fields[observability.PayloadKey]; ok {
				value = fmt.Sprintf("%s=%v", event, p)
			}
			m.Annotations = append(m.Annotations, model.Annotation{
				Timestamp: l.Timestamp,
				Value:     value,
			})
		}
	}
	return m, nil
}
