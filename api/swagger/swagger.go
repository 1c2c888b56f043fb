package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SimLab API",
        "description": "Clinical simulation lab backend: scheduling, grading and recordings",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Credential exchange and account recovery"},
        {"name": "Users", "description": "User and role administration"},
        {"name": "Rooms", "description": "Simulation room inventory"},
        {"name": "Courses", "description": "Course catalogue"},
        {"name": "Classes", "description": "Class sections and membership"},
        {"name": "Practices", "description": "Practice definitions per class"},
        {"name": "Simulations", "description": "Simulation booking and grading"},
        {"name": "Rubrics", "description": "Rubric templates and scoring"},
        {"name": "Grades", "description": "Weighted final grades and exports"},
        {"name": "Calendar", "description": "Role-scoped event feeds"},
        {"name": "Videos", "description": "Recording registry and playback"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate and issue tokens",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Envelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Rotate a refresh token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Envelope"}}
                }
            }
        },
        "/users": {
            "get": {
                "tags": ["Users"],
                "summary": "List users",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "role", "in": "query", "type": "string"},
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Envelope"}}
                }
            },
            "post": {
                "tags": ["Users"],
                "summary": "Create user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateUserRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/Envelope"}}
                }
            }
        },
        "/rooms": {
            "get": {
                "tags": ["Rooms"],
                "summary": "List rooms",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Envelope"}}
                }
            },
            "post": {
                "tags": ["Rooms"],
                "summary": "Create room",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RoomRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/Envelope"}}
                }
            }
        },
        "/rooms/available": {
            "get": {
                "tags": ["Rooms"],
                "summary": "Rooms free over an interval",
                "parameters": [
                    {"name": "start", "in": "query", "required": true, "type": "string", "format": "date-time"},
                    {"name": "end", "in": "query", "required": true, "type": "string", "format": "date-time"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Envelope"}}
                }
            }
        },
        "/simulations": {
            "post": {
                "tags": ["Simulations"],
                "summary": "Book simulation slots",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AddSimulationsRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/Envelope"}},
                    "409": {"description": "Room already booked"}
                }
            }
        },
        "/simulations/schedule": {
            "get": {
                "tags": ["Simulations"],
                "summary": "Weekly schedule around a date",
                "parameters": [
                    {"name": "date", "in": "query", "required": true, "type": "string", "format": "date"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Envelope"}}
                }
            }
        },
        "/simulations/{id}/grade": {
            "post": {
                "tags": ["Simulations"],
                "summary": "Publish a simulation grade",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Envelope"}},
                    "409": {"description": "Grade already published"}
                }
            }
        },
        "/simulations/{id}/rubric": {
            "put": {
                "tags": ["Rubrics"],
                "summary": "Score a simulation rubric",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ScoreRubricRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Envelope"}}
                }
            }
        },
        "/classes/{id}/grades": {
            "get": {
                "tags": ["Grades"],
                "summary": "Weighted final grades for a class",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Envelope"}}
                }
            }
        },
        "/classes/{id}/grades/export": {
            "get": {
                "tags": ["Grades"],
                "summary": "Export final grades as CSV or PDF",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File attachment"}
                }
            }
        },
        "/calendar": {
            "get": {
                "tags": ["Calendar"],
                "summary": "Events for the caller over a date range",
                "parameters": [
                    {"name": "from", "in": "query", "required": true, "type": "string", "format": "date"},
                    {"name": "to", "in": "query", "required": true, "type": "string", "format": "date"},
                    {"name": "role", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Envelope"}},
                    "404": {"description": "No events in range"}
                }
            }
        },
        "/videos/stream": {
            "get": {
                "tags": ["Videos"],
                "summary": "Stream a recording via signed token",
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"},
                    {"name": "Range", "in": "header", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Full content"},
                    "206": {"description": "Partial content"},
                    "416": {"description": "Range not satisfiable"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "CreateUserRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "name": {"type": "string"},
                "last_name": {"type": "string"},
                "institutional_id": {"type": "string"},
                "password": {"type": "string"},
                "roles": {"type": "array", "items": {"type": "string"}},
                "preferred_role": {"type": "string"}
            },
            "required": ["email", "name", "password", "roles"]
        },
        "RoomRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "capacity": {"type": "integer"},
                "ip": {"type": "string"},
                "room_type": {"type": "string"}
            },
            "required": ["name", "room_type"]
        },
        "AddSimulationsRequest": {
            "type": "object",
            "properties": {
                "slots": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/TimeSlotRequest"}
                }
            },
            "required": ["slots"]
        },
        "TimeSlotRequest": {
            "type": "object",
            "properties": {
                "practice_id": {"type": "string"},
                "room_ids": {"type": "array", "items": {"type": "string"}},
                "user_ids": {"type": "array", "items": {"type": "string"}},
                "start_date_time": {"type": "string", "format": "date-time"},
                "end_date_time": {"type": "string", "format": "date-time"}
            },
            "required": ["practice_id", "room_ids", "start_date_time", "end_date_time"]
        },
        "ScoreRubricRequest": {
            "type": "object",
            "properties": {
                "evaluated_criterias": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "name": {"type": "string"},
                            "weight": {"type": "number"},
                            "score": {"type": "number"},
                            "observation": {"type": "string"}
                        }
                    }
                }
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "Envelope": {
            "type": "object",
            "properties": {
                "status": {"type": "integer"},
                "message": {"type": "string"},
                "data": {"type": "object"},
                "metadata": {"$ref": "#/definitions/Pagination"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
